// Package main is the entry point for the tradetape CLI.
package main

import (
	"os"

	"github.com/tradetape/tradetape/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
