package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "workflow-orch",
		Short: "Workflow Orchestrator - Ticket-to-PR automation",
		Long: `Workflow Orchestrator drives a ticket through planning, implementation,
and review by coordinating external agent processes. Each workflow moves a
single work item from its tracker entry to an approved pull request, pausing
for a human whenever an agent cannot proceed unattended.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
