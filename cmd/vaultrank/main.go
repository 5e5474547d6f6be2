// Package main provides the entry point for the vaultrank CLI.
package main

import (
	"os"

	"github.com/vaultrank/vaultrank/cmd/vaultrank/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
