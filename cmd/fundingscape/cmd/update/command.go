// Package update provides the update command.
package update

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/fundingscape/internal/appcontext"
)

// Flags holds the update command flags.
type Flags struct {
	DryRun      bool
	MaxRecords  int
	Concurrency int
	MetricsFile string
	Every       time.Duration
}

// NewCommand creates the update command using app context.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "update [source...]",
		GroupID: "core",
		Short:   "Fetch, normalize and reconcile funding sources",
		Long: `Update runs the pipeline over every enabled source, or only the named ones:

1. Fetch each source through the conditional cache
2. Normalize its records into funders, instruments, calls and awards
3. Reconcile awards reported by several sources into canonical grants
4. Commit the changes and the change log in one transaction

A source that fails is reported and skipped; the others still commit.`,
		Example: `  fundingscape update                          # Update every enabled source
  fundingscape update cordis_bulk gepris       # Update two sources
  fundingscape update --dry-run -o json        # Plan without committing
  fundingscape update --every 24h              # Keep updating daily
  fundingscape update --metrics-file run.prom  # Write per-run metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Execute(cmd.Context(), app, flags, args)
		},
	}

	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "plan every change without committing")
	cmd.Flags().IntVar(&flags.MaxRecords, "max-records", 0, "stop each source after this many records (0 keeps the configured limit)")
	cmd.Flags().IntVar(&flags.Concurrency, "concurrency", 0, "sources fetched in parallel (0 keeps the configured value)")
	cmd.Flags().StringVar(&flags.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after each run")
	cmd.Flags().DurationVar(&flags.Every, "every", 0, "repeat the update at this interval until interrupted")

	return cmd
}
