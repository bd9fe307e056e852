package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
)

// Memory is an in-process Store, used by tests and dry runs.
type Memory struct {
	mu     sync.RWMutex
	state  *Snapshot
	log    []grants.ChangeLogEntry
	seq    int64
	closed bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{state: NewSnapshot()}
}

func cloneSnapshot(s *Snapshot) *Snapshot {
	return &Snapshot{
		Funders:     maps.Clone(s.Funders),
		Instruments: maps.Clone(s.Instruments),
		Grants:      maps.Clone(s.Grants),
		Calls:       maps.Clone(s.Calls),
		Clusters:    slices.Clone(s.Clusters),
		SourceRuns:  maps.Clone(s.SourceRuns),
	}
}

func (m *Memory) check(ctx context.Context) error {
	if m.closed {
		return errors.NewResourceError("access", "store", "memory", errors.New("store is closed"))
	}
	return ctx.Err()
}

// Snapshot implements Store.
func (m *Memory) Snapshot(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return cloneSnapshot(m.state), nil
}

// Commit implements Store. The batch is applied to a copy that replaces
// the live state only when every step succeeded.
func (m *Memory) Commit(ctx context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx); err != nil {
		return err
	}
	if b.IsEmpty() {
		return nil
	}

	next := cloneSnapshot(m.state)
	log := slices.Clone(m.log)
	seq := m.seq

	for _, e := range b.Changes {
		seq++
		e.Seq = seq
		if e.RunID == "" {
			e.RunID = b.RunID
		}
		log = append(log, e)
	}
	for _, f := range b.Funders {
		next.Funders[f.ID] = f
	}
	for _, i := range b.Instruments {
		next.Instruments[i.ID] = i
	}
	for _, g := range b.Grants {
		next.Grants[g.SourceIdentity] = g
	}
	for _, c := range b.Calls {
		next.Calls[c.SourceIdentity] = c
	}
	if b.ReplaceClusters {
		next.Clusters = slices.Clone(b.Clusters)
		slices.SortFunc(next.Clusters, func(x, y grants.CanonicalGrant) int {
			return strings.Compare(x.ID, y.ID)
		})
	}
	for _, r := range b.SourceRuns {
		next.SourceRuns[r.Source] = r
	}

	m.state, m.log, m.seq = next, log, seq
	return nil
}

// Changes implements Store.
func (m *Memory) Changes(ctx context.Context, q ChangeQuery) ([]grants.ChangeLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return m.changes(q), nil
}

func (m *Memory) changes(q ChangeQuery) []grants.ChangeLogEntry {
	var out []grants.ChangeLogEntry
	for i := range m.log {
		if q.Match(&m.log[i]) {
			out = append(out, m.log[i])
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
	}
	return out
}

// LatestChanges implements Store.
func (m *Memory) LatestChanges(ctx context.Context) ([]grants.ChangeLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	if len(m.log) == 0 {
		return nil, nil
	}
	return m.changes(ChangeQuery{RunID: m.log[len(m.log)-1].RunID}), nil
}

// SourceRuns implements Store.
func (m *Memory) SourceRuns(ctx context.Context) ([]grants.SourceRunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return slices.SortedFunc(maps.Values(m.state.SourceRuns), func(x, y grants.SourceRunRecord) int {
		return strings.Compare(x.Source, y.Source)
	}), nil
}

// Clusters implements Store.
func (m *Memory) Clusters(ctx context.Context) ([]grants.CanonicalGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(m.state.Clusters), nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
