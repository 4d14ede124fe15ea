package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadAppliesDefaultsThenOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "room.yaml", `
roomID: room-1
llm:
  default:
    backend: openai
    model: gpt-4o-mini
maxActionsPerRun: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RoomID != "room-1" {
		t.Fatalf("expected roomID override, got %q", cfg.RoomID)
	}
	if cfg.MaxActionsPerRun != 5 {
		t.Fatalf("expected maxActionsPerRun override, got %d", cfg.MaxActionsPerRun)
	}
	if cfg.RunInterval != 2*time.Second {
		t.Fatalf("expected default RunInterval to survive, got %v", cfg.RunInterval)
	}
	if !cfg.Enabled {
		t.Fatalf("expected Enabled default of true")
	}
}

func TestLoadResolvesIncludeChain(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
memory:
  shortTermCapacity: 80
observability:
  logging:
    level: info
`)
	path := writeFile(t, dir, "room.yaml", `
$include: base.yaml
roomID: room-2
observability:
  logging:
    level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Memory.ShortTermCapacity != 80 {
		t.Fatalf("expected included value to survive, got %d", cfg.Memory.ShortTermCapacity)
	}
	if cfg.Observability.Logging.Level != "debug" {
		t.Fatalf("expected child override to win, got %q", cfg.Observability.Logging.Level)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	if err := os.WriteFile(a, []byte("$include: b.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("$include: a.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(a); err == nil {
		t.Fatalf("expected include cycle error")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "room.yaml", "notAField: true\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected strict decode to reject unknown field")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("STORYTELLERDM_API_KEY", "secret-value")
	dir := t.TempDir()
	path := writeFile(t, dir, "room.yaml", `
roomID: room-3
llm:
  default:
    backend: openai
    apiKey: "${STORYTELLERDM_API_KEY}"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Default.APIKey != "secret-value" {
		t.Fatalf("expected env expansion, got %q", cfg.LLM.Default.APIKey)
	}
}

func TestLoadJSON5(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "room.json5", `{
  // a comment, which json5 tolerates
  roomID: 'room-4',
  maxActionsPerRun: 7,
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RoomID != "room-4" || cfg.MaxActionsPerRun != 7 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
