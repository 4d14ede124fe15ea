package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clocktower/storytellerdm/internal/config"
	"github.com/clocktower/storytellerdm/internal/observability"
)

// runAgent implements the run command: load config, build the full
// component stack, start the inbound HTTP listener, and block until a
// shutdown signal arrives.
func runAgent(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("run: load config: %w", err)
	}
	if cfg.RoomID == "" {
		return fmt.Errorf("run: roomID is required")
	}

	log := observability.NewLogger(cfg.Observability.Logging)
	metrics := observability.NewMetrics()
	tracer, flushTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "storytellerdm",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
	})

	slog.Info("starting storytellerdm",
		"version", version, "commit", commit, "roomId", cfg.RoomID, "config", configPath)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stack, _, ing, err := buildStack(ctx, cfg, log, metrics, tracer)
	if err != nil {
		return fmt.Errorf("run: build component stack: %w", err)
	}
	defer stack.stop()
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = flushTracer(flushCtx)
	}()

	httpServer, err := startEventServer(cfg.Engine.ListenAddr, cfg.Observability.MetricsAddr, ing.OnEvent)
	if err != nil {
		return fmt.Errorf("run: start event listener: %w", err)
	}

	slog.Info("storytellerdm running", "listenAddr", cfg.Engine.ListenAddr)

	<-ctx.Done()
	slog.Info("shutting down storytellerdm")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Warn("http server shutdown error", "error", err)
	}
	return nil
}

// startEventServer starts the HTTP listener the engine posts events to,
// alongside /healthz. /metrics is mounted on this listener when metricsAddr
// is empty or equal to addr; any other metricsAddr gets its own listener.
func startEventServer(addr, metricsAddr string, onEvent eventCallback) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", eventHandler(onEvent))
	mux.HandleFunc("/healthz", healthzHandler)
	if metricsAddr == "" || metricsAddr == addr {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("event server error", "error", err)
		}
	}()

	if metricsAddr != "" && metricsAddr != addr {
		go serveMetrics(metricsAddr)
	}

	return server, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "error", err)
	}
}
