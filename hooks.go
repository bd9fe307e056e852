package fundingscape

import (
	"sync"

	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/pipeline"
)

// Hook function types for update events
type (
	// ChangeHook is called once per committed change-log entry, in sequence order
	ChangeHook func(entry grants.ChangeLogEntry)

	// RunHook is called after every update with its report
	RunHook func(report *pipeline.Report)
)

// hooks manages event callbacks
type hooks struct {
	mu       sync.RWMutex
	onChange []ChangeHook
	onRun    []RunHook
}

func newHooks() *hooks {
	return &hooks{}
}

// OnChange registers a callback for committed change-log entries
func (h *hooks) OnChange(fn ChangeHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnRun registers a callback for finished updates
func (h *hooks) OnRun(fn RunHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRun = append(h.onRun, fn)
}

func (h *hooks) triggerChanges(entries []grants.ChangeLogEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range entries {
		for _, hook := range h.onChange {
			hook(e)
		}
	}
}

func (h *hooks) triggerRun(report *pipeline.Report) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, hook := range h.onRun {
		hook(report)
	}
}
