package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

func newMockStore(t *testing.T) (*RunStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &RunStore{db: db, driver: DriverPostgres}, mock
}

func TestSaveRunInsertsRunAndAudits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO agent_runs").
		WithArgs("run-1", "room-1", "orchestrator", int64(1), int64(5), "abcd1234", "ef012345",
			sqlmock.AnyArg(), "completed", sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tool_call_audits").
		WithArgs("run-1", "send_public_message", sqlmock.AnyArg(), sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	run := storyteller.AgentRun{
		ID:           "run-1",
		RoomID:       "room-1",
		AgentName:    "orchestrator",
		SeqFrom:      1,
		SeqTo:        5,
		InputDigest:  "abcd1234",
		OutputDigest: "ef012345",
		Status:       storyteller.RunCompleted,
		Latency:      100 * time.Millisecond,
		StartedAt:    time.Now(),
		Audits: []storyteller.ToolCallAudit{
			{ToolName: "send_public_message", Duration: 10 * time.Millisecond},
		},
	}
	if err := store.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListRunsScansRows(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "room_id", "agent_name", "seq_from", "seq_to", "input_digest", "output_digest",
		"plan_json", "status", "latency_ns", "error_text", "started_at",
	}).AddRow("run-1", "room-1", "orchestrator", int64(1), int64(2), "aa", "bb", "", "completed", int64(1_000_000), "", now)

	mock.ExpectQuery("SELECT id, room_id, agent_name").WithArgs("room-1", 10).WillReturnRows(rows)

	runs, err := store.ListRuns(context.Background(), "room-1", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].Latency != time.Millisecond {
		t.Fatalf("expected latency 1ms, got %v", runs[0].Latency)
	}
}

func TestRunStorePlaceholdersRewritesForPostgres(t *testing.T) {
	store := &RunStore{driver: DriverPostgres}
	got := store.placeholders("SELECT * FROM t WHERE a = ?")
	if got != "SELECT * FROM t WHERE a = $1" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
}
