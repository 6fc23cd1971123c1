package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "dayplanner",
		Short:         "Daily planner backend: API, reminders and midnight rollover",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(rolloverCmd())
	rootCmd.AddCommand(dispatchCmd())
	rootCmd.AddCommand(weeklyReportCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(cronTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
