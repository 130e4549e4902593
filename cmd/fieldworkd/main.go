// Package main provides the entry point for the fieldworkd sync daemon.
//
// The daemon keeps the local store and the backend converged while no CLI
// command is running: it probes connectivity, sweeps pending sessions to the
// backend, and applies push events from other devices.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fieldwork/internal/client"
	"fieldwork/internal/config"
	"fieldwork/internal/metrics"
	"fieldwork/internal/store"
	"fieldwork/internal/syncer"
)

const version = "0.1.0"

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	// Log startup info
	logger.Info("fieldworkd starting",
		"version", version,
		"api_url", cfg.APIURL,
		"data_dir", cfg.DataDir,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	collector := metrics.NewCollector()

	// Open local store
	st, err := store.Open(cfg.DBPath(), collector)
	if err != nil {
		logger.Error("failed to open local store", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing local store")
		_ = st.Close()
	}()

	// Create backend client
	api := client.New(cfg.APIURL)
	if cfg.APIToken != "" {
		api.SetToken(cfg.APIToken)
	}
	api.SetMetrics(collector)

	// Create sync orchestrator
	orch := syncer.New(st, api, collector, syncer.Options{
		ReconnectDebounce: cfg.ReconnectDebounce,
		ProbeInterval:     cfg.ProbeInterval,
	})
	defer orch.Close()

	if orch.Probe(ctx) {
		logger.Info("backend reachable")
	} else {
		logger.Warn("backend unreachable, will keep probing", "api_url", cfg.APIURL)
	}

	// Background loops: connectivity probing and pending-work sweeps
	go orch.RunProbeLoop(ctx)
	go orch.RunSweepLoop(ctx, cfg.ProbeInterval)

	// Consume push events from other devices
	if cfg.EventsEnabled {
		go orch.RunEventLoop(ctx, api)
		logger.Info("event stream enabled")
	}

	logger.Info("daemon ready")

	// Block until a shutdown signal cancels the context
	<-ctx.Done()

	snap := collector.Snapshot()
	logger.Info("runtime stats",
		"uptime_seconds", snap.UptimeSeconds,
		"sync_pushes", opCount(snap.SyncPush),
		"sync_sweeps", opCount(snap.SyncSweep),
		"api_calls", opCount(snap.APICall),
	)

	logger.Info("shutdown complete")
}

func opCount(op *metrics.OperationSnapshot) int64 {
	if op == nil {
		return 0
	}
	return op.Count
}
