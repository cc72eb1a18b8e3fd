// Package app holds the cobra commands of the sync API binary.
package app

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree: serve and migrate up|down.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "titan-api",
		Short:        "Offline-first sync service for exercises, workout plans and workout entries",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json, console); overrides LOG_FORMAT")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	return rootCmd
}
