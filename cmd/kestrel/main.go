// kestrel is the command-line interface for the kestrel event store.
//
// Usage:
//
//	kestrel <command> [flags]
//
// Commands:
//
//	init        Create kestrel.yaml
//	migrate     Create or upgrade the PostgreSQL schema
//	stream      Inspect stored streams
//	demo        Run a bank account scenario
//	diagnose    Run diagnostic checks on your setup
//	version     Show version information
//
// Examples:
//
//	kestrel init --driver=memory --non-interactive
//	kestrel demo --trace
//	kestrel stream events Account-5f0c... --from 2
package main

import (
	"os"

	"github.com/kestrel-es/kestrel/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
