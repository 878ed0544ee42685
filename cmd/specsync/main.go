// Package main implements the specsync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	version = "0.3.0"
	// BuildDate is set at build time
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specsync",
		Short: "specsync - Sync OpenAPI specs into an API catalog",
		Long: `specsync reconciles a local OpenAPI description against a remote
API catalog: it upserts the spec resource, generates a linked request
collection with JWT token caching, materializes Dev/QA/UAT/Prod
environments, and exports the artifacts for automated test runs.`,
		Version:      fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
