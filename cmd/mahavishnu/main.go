// Package main provides the entry point for the mahavishnu CLI.
package main

import (
	"os"

	"github.com/mahavishnu/mahavishnu/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
