package main

import (
	"os"

	"github.com/spf13/cobra"

	appLog "eventcal/internal/log"
)

const version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "eventcal",
		Short:         "Calendar event store with recurrence, search and reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./eventcal.yaml", "Path to config file")

	rootCmd.AddCommand(
		newServeCommand(&configPath),
		newListCommand(&configPath),
		newSearchCommand(&configPath),
		newRemindersCommand(&configPath),
		newImportCommand(&configPath),
		newExportCommand(&configPath),
		newVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		appLog.Error("command failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}
