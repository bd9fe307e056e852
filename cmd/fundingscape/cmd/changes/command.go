// Package changes provides the changes command.
package changes

import (
	"context"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/fundingscape/internal/appcontext"
	"github.com/agentstation/fundingscape/internal/cmd/output"
	"github.com/agentstation/fundingscape/pkg/errors"
	"github.com/agentstation/fundingscape/pkg/grants"
	"github.com/agentstation/fundingscape/pkg/store"
)

var (
	kinds = []grants.ChangeKind{
		grants.ChangeNew, grants.ChangeUpdated, grants.ChangeClosed, grants.ChangeMerged, grants.ChangeCorrected,
	}
	entityTypes = []grants.EntityType{
		grants.EntityFunder, grants.EntityInstrument, grants.EntityCall, grants.EntityGrantAward, grants.EntityCanonicalGrant,
	}
)

// Flags holds the changes command flags.
type Flags struct {
	All    bool
	Run    string
	Kinds  []string
	Entity string
	ID     string
	Limit  int
}

// NewCommand creates the changes command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:     "changes",
		GroupID: "core",
		Short:   "Show the change log",
		Long: `Changes lists change-log entries. By default only the entries of the most
recent run that recorded any are shown; --all searches every run.`,
		Example: `  fundingscape changes                             # Latest run
  fundingscape changes --all --kind closed         # Every closed call or award
  fundingscape changes --entity canonical_grant    # Latest merges
  fundingscape changes --all --id cordis_bulk:horizon_101080142`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Execute(cmd.Context(), app, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.All, "all", false, "search every run instead of the latest")
	cmd.Flags().StringVar(&flags.Run, "run", "", "only entries of this run id")
	cmd.Flags().StringSliceVar(&flags.Kinds, "kind", nil, "only these kinds: "+join(kinds))
	cmd.Flags().StringVar(&flags.Entity, "entity", "", "only this entity type: "+join(entityTypes))
	cmd.Flags().StringVar(&flags.ID, "id", "", "only this entity id")
	cmd.Flags().IntVar(&flags.Limit, "limit", 0, "at most this many entries (0 is unlimited)")

	return cmd
}

// Query validates flags and builds the store query, without a run id.
func (f *Flags) Query() (store.ChangeQuery, error) {
	q := store.ChangeQuery{EntityID: f.ID, Limit: f.Limit}
	if f.Limit < 0 {
		return q, errors.NewValidationError("limit", f.Limit, "must not be negative")
	}
	for _, k := range f.Kinds {
		kind := grants.ChangeKind(strings.ToLower(strings.TrimSpace(k)))
		if !slices.Contains(kinds, kind) {
			return q, errors.NewValidationError("kind", k, "must be one of "+join(kinds))
		}
		q.Kinds = append(q.Kinds, kind)
	}
	if f.Entity != "" {
		et := grants.EntityType(strings.ToLower(strings.TrimSpace(f.Entity)))
		if !slices.Contains(entityTypes, et) {
			return q, errors.NewValidationError("entity", f.Entity, "must be one of "+join(entityTypes))
		}
		q.EntityType = et
	}
	return q, nil
}

// Execute prints the matching entries.
func Execute(ctx context.Context, app appcontext.Interface, flags *Flags) error {
	q, err := flags.Query()
	if err != nil {
		return err
	}
	fs, err := app.Fundingscape(ctx)
	if err != nil {
		return err
	}

	switch {
	case flags.Run != "":
		q.RunID = flags.Run
	case !flags.All:
		latest, err := fs.LatestChanges(ctx)
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			app.Logger().Info().Msg("No changes recorded yet")
			return nil
		}
		q.RunID = latest[0].RunID
	}

	entries, err := fs.Changes(ctx, q)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []grants.ChangeLogEntry{}
	}
	return output.Write(app.Out(), output.DetectFormat(app.OutputFormat()), entries, func() output.Data {
		return output.Changes(entries)
	})
}

func join[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
