// Package cmd defines and implements the CLI commands for the scraper
// executable.
package cmd

import (
	"fmt"
	"os"
)

var cfgFile string

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
