package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Per-device behavioral memory for AI personalization",
	Long:  "Mnemo records user-action events, keeps scored facts, and distills both into a bounded context snapshot for prompt injection. Single Go binary, one local SQLite file.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(factCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(maintenanceCmd)
	rootCmd.AddCommand(forgetCmd)
}
