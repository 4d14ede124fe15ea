// Package main provides the CLI entry point for storytellerdm, an
// autonomous Storyteller agent for hidden-role social deduction games.
//
// storytellerdm narrates, moderates, and adjudicates one room at a time
// against a game engine it never owns: the engine remains the source of
// truth for seating, votes, and phase transitions. storytellerdm only
// observes events, reasons over them with its sub-agents, and emits
// commands back.
//
// # Basic usage
//
// Run the agent against a configured engine:
//
//	storytellerdm run --config storytellerdm.yaml
//
// Ingest or refresh the rules corpus used for rule-question grounding:
//
//	storytellerdm ingest-rules --config storytellerdm.yaml --dir ./rules
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main so tests can exercise it without a process exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "storytellerdm",
		Short: "storytellerdm - autonomous Storyteller agent",
		Long: `storytellerdm narrates, moderates, and adjudicates a hidden-role
social deduction game running on an external engine, one room per process
instance.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildIngestRulesCmd(),
	)

	return rootCmd
}
