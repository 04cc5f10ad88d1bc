// Package cli defines the Cobra command tree for the extkit CLI. Each file
// registers one top-level command with the root command. Commands build a
// session (config, catalog, fetcher, tracker) and only handle flag parsing
// and output formatting.
package cli
