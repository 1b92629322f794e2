package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"seatrecon/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "seatrecon",
	Short: "Reconcile usage telemetry against seat activity reports",
	Long: "Seatrecon cross-checks a usage telemetry export (NDJSON) against the\n" +
		"seat activity report (CSV) for the same customer and flags seats whose\n" +
		"reported activity has no supporting telemetry.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(rootFlags.logLevel)
		if err != nil {
			return err
		}
		logging.Init(level, rootFlags.logFormat)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(cohortsCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
