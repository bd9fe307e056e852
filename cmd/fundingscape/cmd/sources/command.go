// Package sources provides the sources command.
package sources

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/fundingscape/internal/appcontext"
	"github.com/agentstation/fundingscape/internal/cmd/output"
)

// NewCommand creates the sources command.
func NewCommand(app appcontext.Interface) *cobra.Command {
	return &cobra.Command{
		Use:     "sources",
		GroupID: "core",
		Short:   "Show the health of every configured source",
		Long: `Sources lists one record per configured source: the health of its last
run, how many records it produced, and when it last fetched and last
succeeded. Sources that never ran are shown as never-fetched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			fs, err := app.Fundingscape(ctx)
			if err != nil {
				return err
			}
			records, err := fs.Sources(ctx)
			if err != nil {
				return err
			}
			return output.Write(app.Out(), output.DetectFormat(app.OutputFormat()), records, func() output.Data {
				return output.SourceRuns(records)
			})
		},
	}
}
