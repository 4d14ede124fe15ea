package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// Manager coordinates per-room short-term rings, the global rules index,
// and an optional long-term store behind the Memory Manager's Store /
// RetrieveRelevant / SearchRules / IngestRules contracts.
type Manager struct {
	mu           sync.Mutex
	rings        map[string]*ring
	shortTermCap int
	rules        *RulesIndex
	longTerm     storyteller.MemoryStore
	embedder     storyteller.Embedder
	queryCache   *embeddingCache
	log          *slog.Logger
}

// Config configures a Manager.
type Config struct {
	ShortTermCapacity int
	Embedder          storyteller.Embedder
	LongTerm          storyteller.MemoryStore
	Log               *slog.Logger
}

// NewManager builds a Manager. Embedder and LongTerm may both be nil, in
// which case embeddings are skipped and long-term spill/search is a no-op.
func NewManager(cfg Config) *Manager {
	if cfg.ShortTermCapacity <= 0 {
		cfg.ShortTermCapacity = 50
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Manager{
		rings:        make(map[string]*ring),
		shortTermCap: cfg.ShortTermCapacity,
		rules:        NewRulesIndex(cfg.Embedder, cfg.Log),
		longTerm:     cfg.LongTerm,
		embedder:     cfg.Embedder,
		queryCache:   newEmbeddingCache(1000),
		log:          cfg.Log,
	}
}

func (m *Manager) ringFor(roomID string) *ring {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rings[roomID]
	if !ok {
		r = newRing(m.shortTermCap)
		m.rings[roomID] = r
	}
	return r
}

// embed computes an embedding for text, reusing a cached value for
// previously-seen query strings to avoid re-embedding repeated search
// queries against a paid embeddings API.
func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := m.queryCache.get(text); ok {
		return cached, nil
	}
	emb, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	m.queryCache.set(text, emb)
	return emb, nil
}

// Store computes a best-effort embedding for entry if one isn't already
// present and an embedder is configured, appends it to the room's
// short-term ring, and fire-and-forget spills any entry the ring evicts to
// the long-term store.
func (m *Manager) Store(ctx context.Context, roomID string, entry storyteller.MemoryEntry) error {
	if len(entry.Embedding) == 0 && m.embedder != nil {
		emb, err := m.embedder.Embed(ctx, entry.Content)
		if err != nil {
			m.log.Warn("memory: embed entry failed, storing without embedding",
				slog.String("roomId", roomID), slog.Any("error", err))
		} else {
			entry.Embedding = emb
		}
	}

	evicted, didEvict := m.ringFor(roomID).push(entry)
	if didEvict && m.longTerm != nil {
		go m.spill(roomID, evicted)
	}
	return nil
}

func (m *Manager) spill(roomID string, entry storyteller.MemoryEntry) {
	ctx := context.Background()
	if err := m.longTerm.SaveEntry(ctx, roomID, entry); err != nil {
		m.log.Error("memory: long-term spill failed", slog.String("roomId", roomID), slog.String("entryId", entry.ID), slog.Any("error", err))
	}
}

type scoredEntry struct {
	entry storyteller.MemoryEntry
	score float64
	order int
}

// RetrieveRelevant merges short-term (recency-decayed), long-term (vector
// search when available), and rules-index hits, sorts by score descending
// with stable insertion-order tie-break, and truncates to topK.
func (m *Manager) RetrieveRelevant(ctx context.Context, roomID, query string, topK int) ([]storyteller.MemoryEntry, error) {
	var merged []scoredEntry
	order := 0

	for i, entry := range m.ringFor(roomID).newestFirst() {
		score := 1 - 0.1*float64(i)
		if score < 0 {
			score = 0
		}
		entry.Score = score
		merged = append(merged, scoredEntry{entry: entry, score: score, order: order})
		order++
	}

	if m.embedder != nil && m.longTerm != nil {
		queryEmbed, err := m.embed(ctx, query)
		if err != nil {
			m.log.Warn("memory: embed query failed, skipping long-term search", slog.Any("error", err))
		} else {
			hits, err := m.longTerm.SearchByEmbedding(ctx, roomID, queryEmbed, topK)
			if err != nil {
				m.log.Warn("memory: long-term search failed", slog.Any("error", err))
			} else {
				for _, hit := range hits {
					merged = append(merged, scoredEntry{entry: hit, score: hit.Score, order: order})
					order++
				}
			}
		}
	}

	ruleHits, err := m.SearchRules(ctx, query, topK)
	if err != nil {
		m.log.Warn("memory: rules search failed", slog.Any("error", err))
	} else {
		for _, hit := range ruleHits {
			merged = append(merged, scoredEntry{
				entry: storyteller.MemoryEntry{
					Kind:     storyteller.MemoryKindRule,
					Content:  hit.Content,
					Metadata: hit.Metadata,
					Score:    hit.Score,
				},
				score: hit.Score,
				order: order,
			})
			order++
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].order < merged[j].order
	})
	if topK >= 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	out := make([]storyteller.MemoryEntry, len(merged))
	for i, s := range merged {
		out[i] = s.entry
	}
	return out, nil
}

// SearchRules delegates to the global rules index.
func (m *Manager) SearchRules(ctx context.Context, query string, topK int) ([]storyteller.RetrievedChunk, error) {
	return m.rules.SearchRules(ctx, query, topK)
}

// IngestRules delegates to the global rules index.
func (m *Manager) IngestRules(ctx context.Context, docs []RuleDocument) error {
	return m.rules.IngestRules(ctx, docs)
}

// Compact is the nightly maintenance sweep: it re-embeds any short-term
// entry that was stored without one (an embedder outage at Store time) and
// mirrors the room's current short-term window into long-term storage, so a
// crash never loses more than one compaction interval of history.
func (m *Manager) Compact(ctx context.Context, roomID string) error {
	for _, entry := range m.ringFor(roomID).snapshot() {
		if len(entry.Embedding) == 0 && m.embedder != nil {
			emb, err := m.embedder.Embed(ctx, entry.Content)
			if err != nil {
				m.log.Warn("memory: compaction re-embed failed", slog.String("roomId", roomID), slog.String("entryId", entry.ID), slog.Any("error", err))
			} else {
				entry.Embedding = emb
			}
		}
		if m.longTerm != nil {
			if err := m.longTerm.SaveEntry(ctx, roomID, entry); err != nil {
				return fmt.Errorf("memory: compact save entry %s: %w", entry.ID, err)
			}
		}
	}
	return nil
}

// ShortTermSnapshot returns the current in-memory ring contents for roomID,
// oldest first. Used by AgentContext assembly.
func (m *Manager) ShortTermSnapshot(roomID string) []storyteller.MemoryEntry {
	return m.ringFor(roomID).snapshot()
}

// Retrieve implements storyteller.Retriever for rule-context injection in
// the ingress layer, adapting SearchRules's richer result to the simpler
// Retriever contract.
func (m *Manager) Retrieve(ctx context.Context, query string, limit int) ([]storyteller.RetrievedChunk, error) {
	return m.SearchRules(ctx, query, limit)
}

// embeddingCache is a bounded FIFO cache for query embeddings.
type embeddingCache struct {
	mu       sync.RWMutex
	items    map[string][]float32
	order    []string
	capacity int
}

func newEmbeddingCache(capacity int) *embeddingCache {
	return &embeddingCache{items: make(map[string][]float32), capacity: capacity}
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *embeddingCache) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
		if len(c.order) > c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
	}
	c.items[key] = value
}
