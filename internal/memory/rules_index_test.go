package memory

import (
	"context"
	"testing"
)

func TestSearchRulesKeywordFallback(t *testing.T) {
	idx := NewRulesIndex(nil, nil)
	err := idx.IngestRules(context.Background(), []RuleDocument{
		{Source: "ghosts.md", RoleName: "", Content: "A dead player becomes a ghost and may still vote once per game."},
		{Source: "unrelated.md", RoleName: "", Content: "This document discusses unrelated cooking recipes."},
	})
	if err != nil {
		t.Fatalf("IngestRules: %v", err)
	}

	results, err := idx.SearchRules(context.Background(), "can a dead player vote", 5)
	if err != nil {
		t.Fatalf("SearchRules: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one match")
	}
	if results[0].Metadata["source"] != "ghosts.md" {
		t.Fatalf("expected top hit from ghosts.md, got %+v", results[0].Metadata)
	}
}

func TestSearchRulesExcludesZeroScore(t *testing.T) {
	idx := NewRulesIndex(nil, nil)
	_ = idx.IngestRules(context.Background(), []RuleDocument{
		{Source: "a.md", Content: "completely unrelated content about baking bread"},
	})
	results, err := idx.SearchRules(context.Background(), "vote nomination execution", 5)
	if err != nil {
		t.Fatalf("SearchRules: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no matches, got %d", len(results))
	}
}

func TestIngestRulesChunksLongDocument(t *testing.T) {
	idx := NewRulesIndex(nil, nil)
	longContent := ""
	for i := 0; i < 950; i++ {
		longContent += "word "
	}
	err := idx.IngestRules(context.Background(), []RuleDocument{{Source: "long.md", Content: longContent}})
	if err != nil {
		t.Fatalf("IngestRules: %v", err)
	}
	if len(idx.chunks) != 2 {
		t.Fatalf("expected 2 chunks for 950-word doc, got %d", len(idx.chunks))
	}
	if idx.chunks[0].entry.Metadata["chunk_idx"] != 0 || idx.chunks[1].entry.Metadata["chunk_idx"] != 1 {
		t.Fatalf("unexpected chunk_idx metadata: %+v %+v", idx.chunks[0].entry.Metadata, idx.chunks[1].entry.Metadata)
	}
}
