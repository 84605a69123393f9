// Package main implements insightctl, a CLI for scanning text locally and
// for managing insights on a running insightd server.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

const defaultServerURL = "http://localhost:9191"

// options holds flags shared by every command.
type options struct {
	serverURL   string
	catalogPath string
	jsonOutput  bool
	timeout     time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "insightctl",
		Short: "CLI for insightd pattern detection and insight management",
		Long: `insightctl scans text for behavioral patterns and manages the insights
recorded by an insightd server.

detect and analyze run locally and never contact a server. The remaining
commands talk to the server given by --server.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", defaultServerURL, "insightd server URL")
	root.PersistentFlags().StringVar(&opts.catalogPath, "catalog", "", "pattern catalog file (YAML or TOML) for local commands")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print raw JSON instead of formatted output")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout for server commands")

	root.AddCommand(
		newDetectCmd(opts),
		newAnalyzeCmd(opts),
		newInsightsCmd(opts),
		newAdvisoryCmd(opts),
		newHealthCmd(opts),
		newCatalogCmd(opts),
	)
	return root
}
