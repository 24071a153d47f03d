// Assessd recommends assessments from a spreadsheet catalog.
//
// The catalog is split into segments, embedded into a persistent vector
// index and retrieved as context for a hosted language model.
//
// Usage:
//
//	# Serve the HTTP API
//	assessd serve
//
//	# Force a rebuild of the index
//	assessd index
//
//	# One-off query
//	assessd ask "graduate analyst, numerical and verbal, under 40 minutes"
//
// Configuration is read from ~/.config/assessd/config.yaml and environment
// variables; a .env file in the working directory is loaded first.
package main

import (
	"os"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
