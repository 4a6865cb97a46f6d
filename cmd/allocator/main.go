// Package main is the entry point for the allocator: a minimum-variance
// portfolio allocator that solves target-return scenarios over a table of
// historical prices.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
