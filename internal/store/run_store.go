// Package store implements the append-only AgentRunStore behind the
// orchestrator's run log: database/sql with a Postgres driver in
// production and a pure-Go SQLite driver for local/dev use.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// RunStore implements storyteller.AgentRunStore on top of database/sql.
type RunStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the given driver/DSN and ensures the run-log schema
// exists.
func Open(ctx context.Context, driver, dsn string) (*RunStore, error) {
	sqlDriver := driver
	if driver == DriverSQLite {
		sqlDriver = "sqlite"
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(connectCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}

	s := &RunStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *RunStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_runs (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			seq_from BIGINT NOT NULL,
			seq_to BIGINT NOT NULL,
			input_digest TEXT NOT NULL,
			output_digest TEXT NOT NULL,
			plan_json TEXT,
			status TEXT NOT NULL,
			latency_ns BIGINT NOT NULL,
			error_text TEXT,
			started_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tool_call_audits (
			run_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			args TEXT,
			result TEXT,
			error_text TEXT,
			duration_ns BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *RunStore) Close() error { return s.db.Close() }

// SaveRun persists one orchestrator-loop iteration record.
func (s *RunStore) SaveRun(ctx context.Context, run storyteller.AgentRun) error {
	_, err := s.db.ExecContext(ctx, s.placeholders(`
		INSERT INTO agent_runs (id, room_id, agent_name, seq_from, seq_to, input_digest, output_digest, plan_json, status, latency_ns, error_text, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), run.ID, run.RoomID, run.AgentName, run.SeqFrom, run.SeqTo, run.InputDigest, run.OutputDigest,
		string(run.PlanJSON), string(run.Status), run.Latency.Nanoseconds(), run.ErrorText, run.StartedAt)
	if err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	for _, audit := range run.Audits {
		if err := s.SaveToolCall(ctx, run.ID, audit); err != nil {
			return err
		}
	}
	return nil
}

// SaveToolCall persists one per-tool-invocation audit record for runID.
func (s *RunStore) SaveToolCall(ctx context.Context, runID string, audit storyteller.ToolCallAudit) error {
	_, err := s.db.ExecContext(ctx, s.placeholders(`
		INSERT INTO tool_call_audits (run_id, tool_name, args, result, error_text, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`), runID, audit.ToolName, string(audit.Args), string(audit.Result), audit.Error, audit.Duration.Nanoseconds())
	if err != nil {
		return fmt.Errorf("store: save tool call: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs for roomID, newest first.
func (s *RunStore) ListRuns(ctx context.Context, roomID string, limit int) ([]storyteller.AgentRun, error) {
	rows, err := s.db.QueryContext(ctx, s.placeholders(`
		SELECT id, room_id, agent_name, seq_from, seq_to, input_digest, output_digest, plan_json, status, latency_ns, error_text, started_at
		FROM agent_runs WHERE room_id = ?
		ORDER BY started_at DESC LIMIT ?
	`), roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []storyteller.AgentRun
	for rows.Next() {
		var (
			run          storyteller.AgentRun
			planJSON     string
			status       string
			latencyNanos int64
		)
		if err := rows.Scan(&run.ID, &run.RoomID, &run.AgentName, &run.SeqFrom, &run.SeqTo,
			&run.InputDigest, &run.OutputDigest, &planJSON, &status, &latencyNanos, &run.ErrorText, &run.StartedAt); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		run.Status = storyteller.RunStatus(status)
		run.Latency = time.Duration(latencyNanos)
		if planJSON != "" {
			run.PlanJSON = json.RawMessage(planJSON)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *RunStore) placeholders(query string) string {
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

var _ storyteller.AgentRunStore = (*RunStore)(nil)
