// Package main provides the healthcert binary: schema migration, directory
// reconciliation, certificate review and the background scheduler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"

	// Global flags
	configPath string
	outputFlag string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "healthcert",
		Short:         "Health certificate tracking and HR directory reconciliation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ./healthcert.yaml or /etc/healthcert/healthcert.yaml)")
	cmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "Output format: table, json, yaml")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newRemindCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDashboardCmd())
	cmd.AddCommand(newCertCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newHealthcheckCmd())

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
