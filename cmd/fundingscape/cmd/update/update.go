package update

import (
	"context"
	"fmt"
	"time"

	"github.com/agentstation/fundingscape"
	"github.com/agentstation/fundingscape/internal/appcontext"
	"github.com/agentstation/fundingscape/internal/cmd/output"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/logging"
	"github.com/agentstation/fundingscape/pkg/metrics"
	"github.com/agentstation/fundingscape/pkg/pipeline"
	"github.com/agentstation/fundingscape/pkg/sources"
)

// Result is the printable outcome of one run.
type Result struct {
	RunID     string                    `json:"run_id" yaml:"run_id"`
	DryRun    bool                      `json:"dry_run" yaml:"dry_run"`
	Committed bool                      `json:"committed" yaml:"committed"`
	Sources   []*sources.RunResult      `json:"sources" yaml:"sources"`
	Changes   map[grants.ChangeKind]int `json:"changes" yaml:"changes"`
	Clusters  int                       `json:"clusters" yaml:"clusters"`
	Duration  time.Duration             `json:"duration" yaml:"duration"`
	Summary   string                    `json:"summary" yaml:"summary"`
}

// NewResult flattens a pipeline report.
func NewResult(report *pipeline.Report) *Result {
	r := &Result{
		RunID:     report.RunID,
		DryRun:    report.DryRun,
		Committed: report.Committed,
		Sources:   report.Sources,
		Changes:   map[grants.ChangeKind]int{},
		Duration:  report.Duration,
		Summary:   report.Summary(),
	}
	if report.Reconcile != nil {
		for kind, n := range report.Reconcile.Entries {
			r.Changes[kind] = n
		}
		r.Clusters = report.Reconcile.Metadata.Stats.Clusters
	}
	return r
}

// Execute runs one update, or keeps updating when flags.Every is set.
func Execute(ctx context.Context, app appcontext.Interface, flags *Flags, names []string) error {
	if flags.MaxRecords < 0 || flags.Concurrency < 0 {
		return &errors.ValidationError{
			Field:   "flags",
			Message: "--max-records and --concurrency must not be negative",
		}
	}
	logger := app.Logger()
	ctx = logging.WithLogger(ctx, logger)

	fs, err := app.Fundingscape(ctx)
	if err != nil {
		return err
	}
	opts := pipeline.RunOptions{
		Sources:     names,
		DryRun:      flags.DryRun,
		MaxRecords:  flags.MaxRecords,
		Concurrency: flags.Concurrency,
	}
	metricsFile := flags.MetricsFile
	if metricsFile == "" {
		metricsFile = fs.Config().Metrics.File
	}

	if flags.Every > 0 {
		fs.OnRun(func(report *pipeline.Report) {
			if err := finish(app, report, metricsFile); err != nil {
				logger.Error().Err(err).Str("run_id", report.RunID).Msg("Failed to record run")
			}
		})
		logger.Info().Dur("interval", flags.Every).Msg("Updating until interrupted")
		err := fundingscape.Watch(ctx, fs, flags.Every, opts)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	report, err := fs.Update(ctx, opts)
	if err != nil {
		return err
	}
	return finish(app, report, metricsFile)
}

// finish prints the report, warns about failed sources and writes the
// metrics textfile.
func finish(app appcontext.Interface, report *pipeline.Report, metricsFile string) error {
	logger := app.Logger()
	for _, id := range report.Failed() {
		msg := ""
		if res := report.Source(id); res != nil {
			msg = res.Message
		}
		logger.Warn().Str("source", id.String()).Str("reason", msg).Msg("Source failed")
	}

	result := NewResult(report)
	format := output.DetectFormat(app.OutputFormat())
	if err := output.Write(app.Out(), format, result, func() output.Data {
		return output.RunResults(result.Sources)
	}); err != nil {
		return err
	}
	if format == output.FormatTable {
		fmt.Fprintln(app.Out(), result.Summary)
	}

	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile, app.Metrics()); err != nil {
			return errors.WrapIO("write", metricsFile, err)
		}
		logger.Debug().Str("file", metricsFile).Msg("Wrote metrics")
	}
	return nil
}
