package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/clocktower/storytellerdm/internal/config"
	"github.com/clocktower/storytellerdm/internal/ingress"
	"github.com/clocktower/storytellerdm/internal/llm"
	"github.com/clocktower/storytellerdm/internal/mcp"
	"github.com/clocktower/storytellerdm/internal/memory"
	"github.com/clocktower/storytellerdm/internal/observability"
	"github.com/clocktower/storytellerdm/internal/orchestrator"
	"github.com/clocktower/storytellerdm/internal/store"
	"github.com/clocktower/storytellerdm/internal/storyteller"
	"github.com/clocktower/storytellerdm/internal/subagents"
)

// newID mints a fresh command/action/run identifier. Every collaborator
// that needs one takes it as a func() string rather than reaching for
// uuid directly, so tests can supply a deterministic sequence instead.
func newID() string { return uuid.NewString() }

// agentStack bundles every long-lived component runAgent assembles, so
// shutdown can stop them in reverse construction order.
type agentStack struct {
	orch        *orchestrator.Orchestrator
	maintenance *orchestrator.MaintenanceJob
	rulesWatch  *memory.RulesWatcher
	runStore    *store.RunStore
	longTerm    *memory.SQLStore
}

// backendFor maps the YAML-friendly backend name onto the router's typed
// BackendKind, defaulting to OpenAI-compatible for an unset or unrecognized
// value since that's the shape most self-hosted and third-party model
// servers expose.
func backendFor(name string) llm.BackendKind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(llm.BackendAnthropic):
		return llm.BackendAnthropic
	default:
		return llm.BackendOpenAI
	}
}

func toClientBundle(b config.LLMBundle) llm.ClientBundle {
	return llm.ClientBundle{
		Backend: backendFor(b.Backend),
		BaseURL: b.BaseURL,
		APIKey:  b.APIKey,
		Model:   b.Model,
		Timeout: b.Timeout,
	}
}

// buildRouter converts the configured LLM bundles into an llm.Router,
// falling back to the default bundle for any task kind left unset.
func buildRouter(cfg config.LLMConfig) (*llm.Router, error) {
	bundles := map[llm.TaskKind]llm.ClientBundle{
		llm.TaskDefault: toClientBundle(cfg.Default),
	}
	overrides := map[llm.TaskKind]*config.LLMBundle{
		llm.TaskPlanner:       cfg.Planner,
		llm.TaskRules:         cfg.Rules,
		llm.TaskNarrator:      cfg.Narrator,
		llm.TaskSummarizer:    cfg.Summarizer,
		llm.TaskPlayerModeler: cfg.PlayerModeler,
	}
	for task, bundle := range overrides {
		if bundle != nil {
			bundles[task] = toClientBundle(*bundle)
		}
	}
	for name, bundle := range cfg.Extra {
		bundles[llm.TaskKind(name)] = toClientBundle(bundle)
	}
	return llm.NewRouter(bundles)
}

// buildLongTerm opens the configured SQL long-term store, preferring
// Postgres when both are set. Returns nil, nil if neither driver is
// configured: the agent still runs, just without long-term persistence.
func buildLongTerm(ctx context.Context, cfg config.MemoryConfig) (*memory.SQLStore, error) {
	switch {
	case cfg.Postgres != "":
		return memory.Open(ctx, memory.DriverPostgres, cfg.Postgres)
	case cfg.SQLitePath != "":
		return memory.Open(ctx, memory.DriverSQLite, cfg.SQLitePath)
	default:
		return nil, nil
	}
}

// buildEmbedder constructs the configured embeddings provider, or nil if no
// API key is set.
func buildEmbedder(cfg config.EmbeddingConfig) (storyteller.Embedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, nil
	}
	return memory.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model)
}

// buildRunStore opens the configured run-log store, reusing the same
// Postgres/SQLite selection rule and the same DSN as the long-term memory
// store, so both live in one database. Returns nil when neither is set.
func buildRunStore(ctx context.Context, cfg config.MemoryConfig) (*store.RunStore, error) {
	switch {
	case cfg.Postgres != "":
		return store.Open(ctx, store.DriverPostgres, cfg.Postgres)
	case cfg.SQLitePath != "":
		return store.Open(ctx, store.DriverSQLite, cfg.SQLitePath)
	default:
		return nil, nil
	}
}

// buildStack assembles every collaborator runAgent needs and starts the
// control loop, maintenance job, and rules watcher. The caller is
// responsible for calling stop() on shutdown.
func buildStack(ctx context.Context, cfg config.Config, log *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*agentStack, *httpEngineClient, *ingress.Ingress, error) {
	embedder, err := buildEmbedder(cfg.Memory.Embedding)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wiring: build embedder: %w", err)
	}

	longTerm, err := buildLongTerm(ctx, cfg.Memory)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wiring: build long-term store: %w", err)
	}
	var memoryStore storyteller.MemoryStore
	if longTerm != nil {
		memoryStore = longTerm
	}

	manager := memory.NewManager(memory.Config{
		ShortTermCapacity: cfg.Memory.ShortTermCapacity,
		Embedder:          embedder,
		LongTerm:          memoryStore,
		Log:               log.Slog(),
	})

	var rulesWatch *memory.RulesWatcher
	if cfg.Memory.RulesDir != "" {
		rulesWatch = memory.NewRulesWatcher(cfg.Memory.RulesDir, manager, log.Slog())
		if err := rulesWatch.Start(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("wiring: start rules watcher: %w", err)
		}
	}

	router, err := buildRouter(cfg.LLM)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wiring: build router: %w", err)
	}

	registry := mcp.NewRegistry()
	if err := mcp.RegisterCanonicalTools(registry); err != nil {
		return nil, nil, nil, fmt.Errorf("wiring: register tools: %w", err)
	}

	runStore, err := buildRunStore(ctx, cfg.Memory)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wiring: build run store: %w", err)
	}

	engineClient := newHTTPEngineClient(cfg.Engine.CommandsURL, cfg.Engine.StateURL, cfg.Engine.HTTPTimeout)

	agents := orchestrator.SubAgents{
		Moderator:     subagents.NewModerator(newID, nil),
		Rules:         subagents.NewRules(newID, manager, router),
		Narrator:      subagents.NewNarrator(newID, router),
		Summarizer:    subagents.NewSummarizer(newID, router, memoryStore, true),
		PlayerModeler: subagents.NewPlayerModeler(memoryStore),
	}

	var runStoreIface storyteller.AgentRunStore
	if runStore != nil {
		runStoreIface = runStore
	}

	orch := orchestrator.New(orchestrator.Deps{
		RoomID: cfg.RoomID,
		Config: orchestrator.Config{
			MaxActionsPerRun:     cfg.MaxActionsPerRun,
			RunInterval:          cfg.RunInterval,
			ActionTimeout:        cfg.ActionTimeout,
			MaxRetriesPerAction:  cfg.MaxRetriesPerAction,
			ShortTermMemorySize:  cfg.ShortTermMemorySize,
			EnableReflection:     cfg.EnableReflection,
			EnablePlayerModeling: cfg.EnablePlayerModeling,
		},
		Agents:      agents,
		Memory:      manager,
		LongTerm:    memoryStore,
		Registry:    registry,
		Dispatcher:  engineClient,
		StateGetter: engineClient.State,
		RunStore:    runStoreIface,
		NewID:       newID,
		Log:         log,
		Metrics:     metrics,
		Tracer:      tracer,
	})
	orch.Start(ctx)

	// Rules reindexing runs on RulesWatcher's own debounced fsnotify loop
	// rather than on the nightly cron, so the maintenance job only carries
	// compaction here.
	maintenance, err := orchestrator.NewMaintenanceJob(
		cfg.Maintenance.CronSchedule,
		func() []string { return []string{cfg.RoomID} },
		nil,
		manager.Compact,
		log,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wiring: build maintenance job: %w", err)
	}
	maintenance.Start()

	ing := ingress.New(ingress.Deps{
		Enabled:      func() bool { return cfg.Enabled },
		Responder:    ingress.NewModelResponder(router),
		Retriever:    manager,
		Dispatcher:   engineClient,
		Registry:     registry,
		NewID:        newID,
		EventTimeout: cfg.EventTimeout,
		Log:          log,
		Metrics:      metrics,
		Tracer:       tracer,
	})

	stack := &agentStack{
		orch:        orch,
		maintenance: maintenance,
		rulesWatch:  rulesWatch,
		runStore:    runStore,
		longTerm:    longTerm,
	}
	return stack, engineClient, ing, nil
}

func (s *agentStack) stop() {
	if s.orch != nil {
		s.orch.Stop()
	}
	if s.maintenance != nil {
		s.maintenance.Stop()
	}
	if s.rulesWatch != nil {
		if err := s.rulesWatch.Close(); err != nil {
			slog.Warn("wiring: rules watcher close failed", "error", err)
		}
	}
	if s.runStore != nil {
		if err := s.runStore.Close(); err != nil {
			slog.Warn("wiring: run store close failed", "error", err)
		}
	}
	if s.longTerm != nil {
		if err := s.longTerm.Close(); err != nil {
			slog.Warn("wiring: long-term store close failed", "error", err)
		}
	}
}
