package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

const (
	defaultChunkWords   = 500
	defaultOverlapWords = 50
)

// RuleDocument is one corpus document handed to IngestRules.
type RuleDocument struct {
	Source   string
	RoleName string
	Content  string
}

type ruleChunk struct {
	entry storyteller.MemoryEntry
}

// RulesIndex is the global (cross-room) hybrid vector/keyword index over
// the rule corpus.
type RulesIndex struct {
	mu       sync.RWMutex
	embedder storyteller.Embedder
	chunks   []ruleChunk
	log      *slog.Logger
}

// NewRulesIndex builds an empty rules index. embedder may be nil, in which
// case SearchRules always falls back to keyword overlap.
func NewRulesIndex(embedder storyteller.Embedder, log *slog.Logger) *RulesIndex {
	if log == nil {
		log = slog.Default()
	}
	return &RulesIndex{embedder: embedder, log: log}
}

// chunkWords splits words into overlapping windows of chunkSize words with
// overlap words shared between consecutive windows: ⌈(N−overlap)/(chunkSize−overlap)⌉
// chunks for N > chunkSize,
// else a single chunk.
func chunkWords(words []string, chunkSize, overlap int) [][]string {
	n := len(words)
	if n <= chunkSize {
		if n == 0 {
			return nil
		}
		return [][]string{words}
	}
	step := chunkSize - overlap
	var chunks [][]string
	for start := 0; start < n; start += step {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunks = append(chunks, words[start:end])
		if end == n {
			break
		}
	}
	return chunks
}

// IngestRules chunks each document into overlapping word windows, embeds
// each chunk best-effort, and adds it to the index with
// {source, role_name, chunk_idx} metadata.
func (idx *RulesIndex) IngestRules(ctx context.Context, docs []RuleDocument) error {
	for _, doc := range docs {
		words := strings.Fields(doc.Content)
		chunks := chunkWords(words, defaultChunkWords, defaultOverlapWords)
		for i, chunkWordList := range chunks {
			content := strings.Join(chunkWordList, " ")
			entry := storyteller.MemoryEntry{
				ID:      fmt.Sprintf("%s#%d", doc.Source, i),
				Kind:    storyteller.MemoryKindRule,
				Content: content,
				Metadata: map[string]any{
					"source":    doc.Source,
					"role_name": doc.RoleName,
					"chunk_idx": i,
				},
			}
			if idx.embedder != nil {
				emb, err := idx.embedder.Embed(ctx, content)
				if err != nil {
					idx.log.Warn("rules index: embed chunk failed, indexing without embedding",
						slog.String("source", doc.Source), slog.Int("chunk_idx", i), slog.Any("error", err))
				} else {
					entry.Embedding = emb
				}
			}
			idx.mu.Lock()
			idx.chunks = append(idx.chunks, ruleChunk{entry: entry})
			idx.mu.Unlock()
		}
	}
	return nil
}

type scoredChunk struct {
	chunk storyteller.RetrievedChunk
	score float64
	order int
}

func topScoredChunks(items []scoredChunk, topK int) []storyteller.RetrievedChunk {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].order < items[j].order
	})
	if topK >= 0 && len(items) > topK {
		items = items[:topK]
	}
	out := make([]storyteller.RetrievedChunk, len(items))
	for i, it := range items {
		out[i] = it.chunk
	}
	return out
}

// SearchRules returns the topK highest-scoring chunks for query. Uses
// cosine similarity against chunk embeddings when an embedder is
// configured, otherwise falls back to keyword overlap. Zero-score entries
// are excluded either way.
func (idx *RulesIndex) SearchRules(ctx context.Context, query string, topK int) ([]storyteller.RetrievedChunk, error) {
	idx.mu.RLock()
	chunks := make([]ruleChunk, len(idx.chunks))
	copy(chunks, idx.chunks)
	idx.mu.RUnlock()

	if idx.embedder != nil {
		queryEmbed, err := idx.embedder.Embed(ctx, query)
		if err != nil {
			idx.log.Warn("rules index: embed query failed, falling back to keyword overlap", slog.Any("error", err))
		} else {
			var results []scoredChunk
			for i, c := range chunks {
				score := cosineSimilarity(queryEmbed, c.entry.Embedding)
				if score <= 0 {
					continue
				}
				results = append(results, scoredChunk{
					chunk: storyteller.RetrievedChunk{Content: c.entry.Content, Score: score, Metadata: c.entry.Metadata},
					score: score,
					order: i,
				})
			}
			return topScoredChunks(results, topK), nil
		}
	}

	queryTokens := uniqueTokenSet(tokenize(query))
	var results []scoredChunk
	for i, c := range chunks {
		score := keywordOverlapScore(queryTokens, c.entry.Content)
		if score <= 0 {
			continue
		}
		results = append(results, scoredChunk{
			chunk: storyteller.RetrievedChunk{Content: c.entry.Content, Score: score, Metadata: c.entry.Metadata},
			score: score,
			order: i,
		})
	}
	return topScoredChunks(results, topK), nil
}
