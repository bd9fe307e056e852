// Package clusters provides the clusters command.
package clusters

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/fundingscape/internal/appcontext"
	"github.com/agentstation/fundingscape/internal/cmd/output"
	"github.com/agentstation/fundingscape/pkg/errors"
)

// NewCommand creates the clusters command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	var (
		minSize int
		awards  bool
	)

	cmd := &cobra.Command{
		Use:     "clusters",
		GroupID: "core",
		Short:   "Show canonical grants and the source records they merge",
		Long: `Clusters lists canonical grants: one primary source record, chosen by
source priority, and the aliases reconciled into it. By default only
clusters that merge two or more records are shown. With --awards each
cluster carries one merged award: the primary's fields, with gaps filled
from the aliases.`,
		Example: `  fundingscape clusters               # Merged awards
  fundingscape clusters --min-size 1  # Every canonical grant
  fundingscape clusters --awards      # Merged awards with coalesced fields
  fundingscape clusters -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if minSize < 1 {
				return errors.NewValidationError("min-size", minSize, "must be at least 1")
			}
			ctx := cmd.Context()
			fs, err := app.Fundingscape(ctx)
			if err != nil {
				return err
			}
			format := output.DetectFormat(app.OutputFormat())
			if awards {
				all, err := fs.CoalescedGrants(ctx)
				if err != nil {
					return err
				}
				selected := Filter(all, minSize)
				return output.Write(app.Out(), format, selected, func() output.Data {
					return output.CoalescedGrants(selected)
				})
			}
			all, err := fs.Clusters(ctx)
			if err != nil {
				return err
			}
			selected := Filter(all, minSize)
			return output.Write(app.Out(), format, selected, func() output.Data {
				return output.Clusters(selected)
			})
		},
	}

	cmd.Flags().IntVar(&minSize, "min-size", 2, "only clusters with at least this many member records")
	cmd.Flags().BoolVar(&awards, "awards", false, "include the coalesced award of each cluster")
	return cmd
}

// Filter keeps the clusters with at least minSize members.
func Filter[C interface{ Size() int }](clusters []C, minSize int) []C {
	selected := []C{}
	for _, c := range clusters {
		if c.Size() >= minSize {
			selected = append(selected, c)
		}
	}
	return selected
}
