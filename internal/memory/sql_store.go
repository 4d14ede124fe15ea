package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

// Driver names recognized by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLStore implements storyteller.MemoryStore on top of database/sql, with
// lib/pq for Postgres and modernc.org/sqlite as the zero-dependency
// local/dev driver.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects to either a Postgres DSN ("postgres") or a local SQLite
// file ("sqlite") and ensures the long-term memory schema exists.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	sqlDriver := driver
	if driver == DriverSQLite {
		sqlDriver = "sqlite"
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: ping %s: %w", driver, err)
	}

	store := &SQLStore{db: db, driver: driver}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: migrate: %w", err)
	}
	return store, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS game_summaries (
			room_id TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS player_models (
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			playstyle TEXT NOT NULL,
			trust_score DOUBLE PRECISION NOT NULL,
			deception_score DOUBLE PRECISION NOT NULL,
			participation_score DOUBLE PRECISION NOT NULL,
			voting_pattern_tags TEXT,
			last_updated TIMESTAMP NOT NULL,
			PRIMARY KEY (room_id, user_id)
		)`,
	}
	if s.driver == DriverSQLite {
		for i, stmt := range stmts {
			stmts[i] = sqliteCompatible(stmt)
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// sqliteCompatible swaps the one Postgres-specific type modernc.org/sqlite
// doesn't recognize; SQLite's type affinity rules make everything else
// already portable.
func sqliteCompatible(stmt string) string {
	out := make([]byte, 0, len(stmt))
	rest := stmt
	for {
		idx := indexOf(rest, "DOUBLE PRECISION")
		if idx < 0 {
			out = append(out, rest...)
			break
		}
		out = append(out, rest[:idx]...)
		out = append(out, "REAL"...)
		rest = rest[idx+len("DOUBLE PRECISION"):]
	}
	return string(out)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func (s *SQLStore) Close() error { return s.db.Close() }

// SaveEntry persists one long-term memory entry, typically an item spilled
// from a room's short-term ring.
func (s *SQLStore) SaveEntry(ctx context.Context, roomID string, entry storyteller.MemoryEntry) error {
	embeddingJSON, err := json.Marshal(entry.Embedding)
	if err != nil {
		return fmt.Errorf("memory: marshal embedding: %w", err)
	}
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("memory: marshal metadata: %w", err)
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, s.placeholders(`
		INSERT INTO memory_entries (id, room_id, kind, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`), entry.ID, roomID, string(entry.Kind), entry.Content, string(embeddingJSON), string(metadataJSON), createdAt)
	if err != nil {
		return fmt.Errorf("memory: save entry: %w", err)
	}
	return nil
}

// LoadEntries returns the most recent entries for roomID, newest first.
func (s *SQLStore) LoadEntries(ctx context.Context, roomID string, limit int) ([]storyteller.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.placeholders(`
		SELECT id, kind, content, embedding, metadata, created_at
		FROM memory_entries WHERE room_id = ?
		ORDER BY created_at DESC LIMIT ?
	`), roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: load entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// SearchByEmbedding loads a bounded recent window for roomID and ranks it
// by cosine similarity against embedding in application code: the stores
// this ships with (lib/pq, modernc.org/sqlite) have no native vector index,
// so exact search over a bounded window is the correct tradeoff rather
// than depending on a vector extension.
func (s *SQLStore) SearchByEmbedding(ctx context.Context, roomID string, embedding []float32, topK int) ([]storyteller.MemoryEntry, error) {
	const scanWindow = 500
	candidates, err := s.LoadEntries(ctx, roomID, scanWindow)
	if err != nil {
		return nil, err
	}
	type scored struct {
		entry storyteller.MemoryEntry
		score float64
		order int
	}
	scoredEntries := make([]scored, 0, len(candidates))
	for i, e := range candidates {
		score := cosineSimilarity(embedding, e.Embedding)
		if score <= 0 {
			continue
		}
		e.Score = score
		scoredEntries = append(scoredEntries, scored{entry: e, score: score, order: i})
	}
	sort.SliceStable(scoredEntries, func(i, j int) bool {
		if scoredEntries[i].score != scoredEntries[j].score {
			return scoredEntries[i].score > scoredEntries[j].score
		}
		return scoredEntries[i].order < scoredEntries[j].order
	})
	if topK >= 0 && len(scoredEntries) > topK {
		scoredEntries = scoredEntries[:topK]
	}
	out := make([]storyteller.MemoryEntry, len(scoredEntries))
	for i, s := range scoredEntries {
		out[i] = s.entry
	}
	return out, nil
}

func scanEntries(rows *sql.Rows) ([]storyteller.MemoryEntry, error) {
	var out []storyteller.MemoryEntry
	for rows.Next() {
		var (
			entry         storyteller.MemoryEntry
			kind          string
			embeddingJSON string
			metadataJSON  string
		)
		if err := rows.Scan(&entry.ID, &kind, &entry.Content, &embeddingJSON, &metadataJSON, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan entry: %w", err)
		}
		entry.Kind = storyteller.MemoryKind(kind)
		if embeddingJSON != "" {
			if err := json.Unmarshal([]byte(embeddingJSON), &entry.Embedding); err != nil {
				return nil, fmt.Errorf("memory: unmarshal embedding: %w", err)
			}
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("memory: unmarshal metadata: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// SaveGameSummary upserts the running summary for roomID.
func (s *SQLStore) SaveGameSummary(ctx context.Context, roomID, summary string) error {
	var stmt string
	switch s.driver {
	case DriverSQLite:
		stmt = `INSERT INTO game_summaries (room_id, summary, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(room_id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`
	default:
		stmt = `INSERT INTO game_summaries (room_id, summary, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT(room_id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`
	}
	_, err := s.db.ExecContext(ctx, stmt, roomID, summary, time.Now())
	if err != nil {
		return fmt.Errorf("memory: save game summary: %w", err)
	}
	return nil
}

// GetGameSummary returns the current summary for roomID, or "" if none.
func (s *SQLStore) GetGameSummary(ctx context.Context, roomID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx, s.placeholders(`SELECT summary FROM game_summaries WHERE room_id = ?`), roomID).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: get game summary: %w", err)
	}
	return summary, nil
}

// SavePlayerModel upserts a per-player behavioral profile.
func (s *SQLStore) SavePlayerModel(ctx context.Context, roomID string, model storyteller.PlayerModel) error {
	tagsJSON, err := json.Marshal(model.VotingPatternTags)
	if err != nil {
		return fmt.Errorf("memory: marshal voting tags: %w", err)
	}
	lastUpdated := model.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}
	var stmt string
	switch s.driver {
	case DriverSQLite:
		stmt = `INSERT INTO player_models (room_id, user_id, playstyle, trust_score, deception_score, participation_score, voting_pattern_tags, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(room_id, user_id) DO UPDATE SET
				playstyle = excluded.playstyle, trust_score = excluded.trust_score,
				deception_score = excluded.deception_score, participation_score = excluded.participation_score,
				voting_pattern_tags = excluded.voting_pattern_tags, last_updated = excluded.last_updated`
	default:
		stmt = `INSERT INTO player_models (room_id, user_id, playstyle, trust_score, deception_score, participation_score, voting_pattern_tags, last_updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT(room_id, user_id) DO UPDATE SET
				playstyle = excluded.playstyle, trust_score = excluded.trust_score,
				deception_score = excluded.deception_score, participation_score = excluded.participation_score,
				voting_pattern_tags = excluded.voting_pattern_tags, last_updated = excluded.last_updated`
	}
	_, err = s.db.ExecContext(ctx, stmt, roomID, model.UserID, model.Playstyle, model.TrustScore,
		model.DeceptionScore, model.ParticipationScore, string(tagsJSON), lastUpdated)
	if err != nil {
		return fmt.Errorf("memory: save player model: %w", err)
	}
	return nil
}

// GetPlayerModels returns every known player model for roomID, by user id.
func (s *SQLStore) GetPlayerModels(ctx context.Context, roomID string) (map[string]storyteller.PlayerModel, error) {
	rows, err := s.db.QueryContext(ctx, s.placeholders(`
		SELECT user_id, playstyle, trust_score, deception_score, participation_score, voting_pattern_tags, last_updated
		FROM player_models WHERE room_id = ?
	`), roomID)
	if err != nil {
		return nil, fmt.Errorf("memory: get player models: %w", err)
	}
	defer rows.Close()

	out := make(map[string]storyteller.PlayerModel)
	for rows.Next() {
		var (
			model   storyteller.PlayerModel
			tagsRaw string
		)
		if err := rows.Scan(&model.UserID, &model.Playstyle, &model.TrustScore, &model.DeceptionScore,
			&model.ParticipationScore, &tagsRaw, &model.LastUpdated); err != nil {
			return nil, fmt.Errorf("memory: scan player model: %w", err)
		}
		if tagsRaw != "" {
			_ = json.Unmarshal([]byte(tagsRaw), &model.VotingPatternTags)
		}
		out[model.UserID] = model
	}
	return out, rows.Err()
}

// placeholders rewrites ?-style placeholders to $N for Postgres; SQLite
// accepts ? natively.
func (s *SQLStore) placeholders(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	out := make([]byte, 0, len(query)+16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, '$')
			out = append(out, []byte(fmt.Sprintf("%d", n))...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

var _ storyteller.MemoryStore = (*SQLStore)(nil)
