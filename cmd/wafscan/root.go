package main

import (
	"github.com/spf13/cobra"
	"github.com/wafscan/wafscan/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "wafscan",
	Short:         "wafscan grades cloud accounts against well-architected best practices.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: commandUsesStructuredLogging(cmd),
		}
		setCommandExecutionContext(ctx)
		if !ctx.UsesStructuredLog {
			return nil
		}
		_, err := logging.BootstrapFromEnv(logging.BootstrapOptions{
			Command: ctx.CommandPath,
			Writer:  cmd.ErrOrStderr(),
		})
		return err
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(scanCmd, compareCmd, checksCmd, migrateCmd, cacheCmd)
}
