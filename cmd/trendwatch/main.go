package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "trendwatch",
		Short:        "Watch a trending list and notify Telegram channels when it changes",
		SilenceUsage: true,
		RunE:         runWatch,
	}

	root.PersistentFlags().String("config", "", "config file path (JSON or YAML); empty uses the environment only")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the config (missing file is ignored)")
	root.Flags().Bool("dry-run", false, "print messages to stdout instead of sending them")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the poll loop (default)",
		RunE:  runWatch,
	}
	runCmd.Flags().Bool("dry-run", false, "print messages to stdout instead of sending them")
	root.AddCommand(runCmd)

	root.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Fetch once and print the current list without sending anything",
		RunE:  runOnce,
	})

	root.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Parse and validate the config, then print the effective routing",
		RunE:  runCheckConfig,
	})

	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the newest delivery journal records",
		RunE:  runJournal,
	}
	journalCmd.Flags().Int("limit", 20, "number of records to print")
	root.AddCommand(journalCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
