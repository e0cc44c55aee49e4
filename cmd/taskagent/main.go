// Package main provides the entry point for the taskagent CLI.
package main

import (
	"os"

	"github.com/posthog/taskagent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
