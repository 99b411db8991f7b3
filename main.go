// Package main is the entry point for the inkmetrics CLI tool, which scrapes
// Splatoon 3 battle history from stat.ink and computes player/team statistics.
package main

import "github.com/pable/go-ink-metrics/cmd"

func main() {
	cmd.Execute()
}
