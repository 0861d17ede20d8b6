// Attic - Personal Music Listening Warehouse and Rediscovery Pipeline
// Copyright 2026 Attic Audio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/attic-audio/attic

// Package main is the entry point for the attic pipeline runner.
//
// Attic is a personal music listening warehouse: scrobbles, local file
// tags, catalog annotations and similar-listener feeds land in raw DuckDB
// tables (written by ingestion collaborators), and each attic run rebuilds
// every derived table from them: entity resolution maps, listening
// statistics, revisit candidates, recommendation candidates and playlist
// analytics.
//
// # Execution Model
//
// One invocation is one batch run:
//
//  1. Configuration: defaults, optional YAML file, environment (Koanf v2)
//  2. Warehouse: open DuckDB, ensure raw tables exist
//  3. Pipeline: run every transformation step in dependency order
//  4. Exit 0 on success, 1 on failure
//
// Derived tables are built under a staging name and atomically swapped in,
// so a reader (or an aborted run) only ever sees complete tables.
//
// # Reproducibility
//
// All recency math uses a single baseline timestamp, taken once at startup
// or supplied with -now. Two runs over the same raw snapshot with the same
// baseline produce identical derived tables.
//
// # Debug Listener
//
// With debug.enabled (ATTIC_DEBUG_ENABLED=true) a listener serves
// /healthz and Prometheus /metrics while the run is in flight, for
// schedulers that scrape batch jobs.
//
// # Example Usage
//
//	export ATTIC_DUCKDB_PATH=/data/attic.duckdb
//	./attic
//
// Reproducing yesterday's run:
//
//	./attic -now 2026-08-22T06:00:00Z
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attic-audio/attic/internal/config"
	"github.com/attic-audio/attic/internal/logging"
	"github.com/attic-audio/attic/internal/pipeline"
	"github.com/attic-audio/attic/internal/pipeline/steps"
	"github.com/attic-audio/attic/internal/warehouse"
)

func main() {
	os.Exit(run())
}

func run() int {
	var nowFlag string
	flag.StringVar(&nowFlag, "now", "", "baseline timestamp for recency windows (RFC 3339, default: current time)")
	flag.Parse()

	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	baseline := time.Now().UTC()
	if nowFlag != "" {
		baseline, err = time.Parse(time.RFC3339, nowFlag)
		if err != nil {
			logging.Error().Err(err).Str("now", nowFlag).Msg("Invalid -now timestamp")
			return 1
		}
		baseline = baseline.UTC()
	}

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Time("baseline", baseline).
		Msg("Starting attic pipeline run")

	db, err := warehouse.New(&cfg.Database)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to open warehouse")
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing warehouse")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var debugSrv *http.Server
	if cfg.Debug.Enabled {
		debugSrv = startDebugListener(cfg.Debug.Addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := debugSrv.Shutdown(shutdownCtx); err != nil {
				logging.Warn().Err(err).Msg("Debug listener shutdown")
			}
		}()
	}

	dag := pipeline.NewDAG()
	if err := dag.Register(steps.All()...); err != nil {
		logging.Error().Err(err).Msg("Failed to register pipeline steps")
		return 1
	}

	runCtx := &pipeline.Run{DB: db, Cfg: cfg, Now: baseline}
	if err := dag.Execute(ctx, runCtx); err != nil {
		logging.Error().Err(err).Msg("Pipeline run failed")
		return 1
	}

	return 0
}

// startDebugListener serves /healthz and /metrics while the run is in
// flight. Batch schedulers scrape it to watch step progress.
func startDebugListener(addr string) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Info().Str("addr", addr).Msg("Debug listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn().Err(err).Msg("Debug listener stopped")
		}
	}()
	return srv
}
