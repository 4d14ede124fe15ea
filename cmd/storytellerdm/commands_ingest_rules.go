package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clocktower/storytellerdm/internal/config"
	"github.com/clocktower/storytellerdm/internal/memory"
)

// buildIngestRulesCmd creates the "ingest-rules" command: a short-lived
// run that chunks and embeds a directory of rule documents into a rules
// index held in this process only, independent of the running agent's own
// RulesWatcher hot-reload loop. Nothing is written to the long-term store.
func buildIngestRulesCmd() *cobra.Command {
	var (
		configPath string
		dir        string
	)

	cmd := &cobra.Command{
		Use:   "ingest-rules",
		Short: "Ingest a directory of rule documents into the rules index",
		Long: `Reads every file directly under --dir, treats each as one rule
document, chunks and embeds it into an in-process rules index, and reports
how many documents were ingested. The index is not persisted: it is
discarded when the command exits, and a running agent loads its rules
through its own rules-directory watcher.`,
		Example: `  storytellerdm ingest-rules --config storytellerdm.yaml --dir ./rules`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestRules(cmd.Context(), configPath, dir)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "storytellerdm.yaml", "Path to YAML/JSON5 configuration file")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory of rule documents to ingest (defaults to the configured rulesDir)")
	return cmd
}

func runIngestRules(ctx context.Context, configPath, dir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("ingest-rules: load config: %w", err)
	}
	if dir == "" {
		dir = cfg.Memory.RulesDir
	}
	if dir == "" {
		return fmt.Errorf("ingest-rules: no --dir given and no memory.rulesDir configured")
	}

	embedder, err := buildEmbedder(cfg.Memory.Embedding)
	if err != nil {
		return fmt.Errorf("ingest-rules: build embedder: %w", err)
	}

	manager := memory.NewManager(memory.Config{
		ShortTermCapacity: cfg.Memory.ShortTermCapacity,
		Embedder:          embedder,
	})

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("ingest-rules: read dir %s: %w", dir, err)
	}

	var docs []memory.RuleDocument
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("ingest-rules: read %s: %w", path, err)
		}
		docs = append(docs, memory.RuleDocument{Source: e.Name(), Content: string(content)})
	}

	if err := manager.IngestRules(ctx, docs); err != nil {
		return fmt.Errorf("ingest-rules: ingest: %w", err)
	}
	fmt.Printf("ingested %d rule document(s) from %s\n", len(docs), dir)
	return nil
}
