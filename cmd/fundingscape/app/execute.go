package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/fundingscape/cmd/fundingscape/cmd/changes"
	"github.com/agentstation/fundingscape/cmd/fundingscape/cmd/clusters"
	sourcescmd "github.com/agentstation/fundingscape/cmd/fundingscape/cmd/sources"
	"github.com/agentstation/fundingscape/cmd/fundingscape/cmd/update"
	"github.com/agentstation/fundingscape/cmd/fundingscape/cmd/version"
	"github.com/agentstation/fundingscape/internal/cmd/output"
	"github.com/agentstation/fundingscape/pkg/logging"
)

// Execute runs the fundingscape CLI with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(a.out)
	return rootCmd.ExecuteContext(ctx)
}

func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "fundingscape",
		Short:   "Research funding landscape reconciler",
		Version: a.version,
		Long: `Fundingscape collects research funding calls and grant awards from public
sources (CORDIS, OpenAIRE, the EU Funding & Tenders portal, DFG GEPRIS and
a curated file), normalizes them into one model and reconciles awards
reported by several sources into canonical grants. Every change is kept
in an append-only change log.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is ./.fundingscape.yaml, then $HOME/.fundingscape.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	flags.BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	flags.Bool("no-color", false, "disable colored output")
	flags.StringP("format", "o", "", "output format: table, json, yaml (default table on a terminal, else json)")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	rootCmd.SetVersionTemplate("fundingscape {{.Version}}\n")

	rootCmd.AddCommand(
		update.NewCommand(a),
		changes.NewCommand(a),
		sourcescmd.NewCommand(a),
		clusters.NewCommand(a),
		version.NewCommand(a),
	)
	return rootCmd
}

// setupCommand applies the global flags before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	format := mustGetString(cmd, "format")
	if _, err := output.ParseFormat(format); err != nil {
		return err
	}
	a.config.UpdateFromFlags(
		mustGetBool(cmd, "verbose"),
		mustGetBool(cmd, "quiet"),
		mustGetBool(cmd, "no-color"),
		format,
		mustGetString(cmd, "log-level"),
		mustGetString(cmd, "config"),
	)

	logger := NewLogger(a.config)
	a.logger = &logger
	logging.SetDefault(logger)
	return nil
}

// ExitOnError prints err to stderr and exits with status 1.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// mustGetBool retrieves a flag defined on the root command.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a flag defined on the root command.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
