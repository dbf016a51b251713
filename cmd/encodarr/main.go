// Package main is the entry point for the encodarr application.
package main

import (
	"os"

	"github.com/jmylchreest/encodarr/cmd/encodarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
