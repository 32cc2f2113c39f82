// Package main provides the entry point for the monorel CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/monorel/cmd/monorel/commands"
	"github.com/Sumatoshi-tech/monorel/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	var globals commands.GlobalFlags

	rootCmd := &cobra.Command{
		Use:   "monorel",
		Short: "monorel - release bookkeeping for monorepos",
		Long: `monorel works out which packages of a monorepo a change touches and
acts on them.

Commands:
  affected   List the packages touched by a change
  changeset  Record a pending release for the affected packages
  tag        Tag the current version of each affected package
  deploy     Open deployment pull requests for the affected packages`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	globals.Register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(commands.NewAffectedCommand(&globals))
	rootCmd.AddCommand(commands.NewChangesetCommand(&globals))
	rootCmd.AddCommand(commands.NewTagCommand(&globals))
	rootCmd.AddCommand(commands.NewDeployCommand(&globals))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "monorel %s\n", version.String())
		},
	}
}
