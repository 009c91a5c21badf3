package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "helpdeskctl",
	Short: "Support desk management CLI",
	Long: `Support desk management CLI.

Environment:
  HELPDESK_API_URL   Daemon URL (default: http://localhost:8080)
  HELPDESK_API_KEY   API key for authentication`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(healthCmd, ticketsCmd, sweepCmd, schedulerCmd, logsCmd, diagnoseCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
