// Package config loads the YAML (or JSON5) configuration that wires one
// Storyteller instance: room binding, model router bundles, memory store
// selection, control-loop bounds, and observability settings.
package config

import "time"

// LLMBundle mirrors llm.ClientBundle in a YAML-friendly shape; the caller
// converts LLMBundle values into llm.ClientBundle values when constructing the
// router.
type LLMBundle struct {
	Backend string        `yaml:"backend"`
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig names the default bundle and any per-task-kind overrides.
type LLMConfig struct {
	Default       LLMBundle            `yaml:"default"`
	Planner       *LLMBundle           `yaml:"planner,omitempty"`
	Rules         *LLMBundle           `yaml:"rules,omitempty"`
	Narrator      *LLMBundle           `yaml:"narrator,omitempty"`
	Summarizer    *LLMBundle           `yaml:"summarizer,omitempty"`
	PlayerModeler *LLMBundle           `yaml:"playerModeler,omitempty"`
	Extra         map[string]LLMBundle `yaml:"extra,omitempty"`
}

// MemoryConfig selects the long-term store driver and the rules corpus
// directory watched for hot reload.
type MemoryConfig struct {
	ShortTermCapacity int             `yaml:"shortTermCapacity"`
	Postgres          string          `yaml:"postgres,omitempty"`
	SQLitePath        string          `yaml:"sqlitePath,omitempty"`
	RulesDir          string          `yaml:"rulesDir,omitempty"`
	Embedding         EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig configures the optional embeddings provider behind
// vector search over long-term memory and the rules index. Leaving
// APIKey empty disables embeddings entirely: entries are still stored and
// retrieved by recency and keyword overlap alone.
type EmbeddingConfig struct {
	BaseURL string `yaml:"baseURL,omitempty"`
	APIKey  string `yaml:"apiKey,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	Logging     LogConfig     `yaml:"logging"`
	MetricsAddr string        `yaml:"metricsAddr,omitempty"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// LogConfig selects the slog handler's level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MaintenanceConfig configures the nightly cron-driven reindex/compaction
// job, independent of the per-room control loop.
type MaintenanceConfig struct {
	CronSchedule string `yaml:"cronSchedule"`
}

// EngineConfig points at the external game engine this instance talks to:
// where to POST outbound commands, where to GET the current room state,
// and which local address to listen on for inbound engine events.
type EngineConfig struct {
	ListenAddr  string        `yaml:"listenAddr"`
	CommandsURL string        `yaml:"commandsURL"`
	StateURL    string        `yaml:"stateURL"`
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
}

// Config is one Storyteller instance's full configuration surface: room
// binding, router bundles, memory store selection, control-loop bounds,
// and observability settings.
type Config struct {
	RoomID  string `yaml:"roomID"`
	Enabled bool   `yaml:"enabled"`

	LLM    LLMConfig    `yaml:"llm"`
	Memory MemoryConfig `yaml:"memory"`

	MaxActionsPerRun     int           `yaml:"maxActionsPerRun"`
	RunInterval          time.Duration `yaml:"runInterval"`
	ActionTimeout        time.Duration `yaml:"actionTimeout"`
	MaxRetriesPerAction  int           `yaml:"maxRetriesPerAction"`
	ShortTermMemorySize  int           `yaml:"shortTermMemorySize"`
	EnableReflection     bool          `yaml:"enableReflection"`
	EnablePlayerModeling bool          `yaml:"enablePlayerModeling"`
	EventTimeout         time.Duration `yaml:"eventTimeout"`

	Observability ObservabilityConfig `yaml:"observability"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	Engine        EngineConfig        `yaml:"engine"`
}

// Defaults returns a Config with every control-loop default applied.
// Load starts from this before overlaying the file's contents.
func Defaults() Config {
	return Config{
		Enabled:              true,
		MaxActionsPerRun:     10,
		RunInterval:          2 * time.Second,
		ActionTimeout:        30 * time.Second,
		MaxRetriesPerAction:  3,
		ShortTermMemorySize:  50,
		EnableReflection:     true,
		EnablePlayerModeling: true,
		EventTimeout:         8 * time.Second,
		Memory: MemoryConfig{
			ShortTermCapacity: 50,
		},
		Maintenance: MaintenanceConfig{
			CronSchedule: "0 3 * * *",
		},
		Engine: EngineConfig{
			ListenAddr:  ":8085",
			HTTPTimeout: 5 * time.Second,
		},
	}
}
