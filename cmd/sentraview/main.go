package main

// Package main is the entry point for the sentraview CLI.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables, and CLI flags
//   - Open the SQLite store and wire the ingestion pipeline engine
//   - Dispatch subcommands: ingest, activate, read, train, score, detections, triage
//   - Finalize audit logs on exit
//
// Data Flow:
//   1. ingest: spreadsheet upload → tool detection → parser → dedup/KPIs → inactive dataset
//   2. activate: swaps the active dataset for a (company, tool) pair
//   3. read: filtered view over the active datasets (time range, aggregation)
//   4. train/score: isolation-forest model lifecycle over the active dataset
//   5. detections/triage: review and advance flagged days through the workflow

import (
	"fmt"
	"os"

	"github.com/sentraview/sentraview-core/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
