// Package main provides the entry point for the mailflow queue administration tool.
package main

import (
	"fmt"
	"os"

	"mailflowAdmin/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
