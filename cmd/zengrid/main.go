package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zengrid",
		Short: "Reactive dataflow engine for tabular data",
		Long: `ZenGrid is a signal-based dataflow engine for tabular data.

State lives in a key/value store of reactive cells; plugins extend the
store with signals, computed values, actions, and effects, and a phased
pipeline derives the visible row order from the raw rows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		demoCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
