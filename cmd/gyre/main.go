// Package main provides the entry point for the gyre CLI.
package main

import (
	"os"

	"github.com/gyrelabs/gyre/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
