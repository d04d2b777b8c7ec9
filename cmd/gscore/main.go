// GScore - Bitcoin risk dashboard engine.
// Copyright (c) 2026 GhostGauge
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ghostgauge/gscore/internal/alerts"
	"github.com/ghostgauge/gscore/internal/api"
	"github.com/ghostgauge/gscore/internal/bus"
	"github.com/ghostgauge/gscore/internal/cache"
	"github.com/ghostgauge/gscore/internal/config"
	"github.com/ghostgauge/gscore/internal/domain"
	"github.com/ghostgauge/gscore/internal/history"
	"github.com/ghostgauge/gscore/internal/ingest"
	"github.com/ghostgauge/gscore/internal/repository"
	"github.com/ghostgauge/gscore/internal/score"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "gscore.yaml", "path to the YAML config file")
	flag.Parse()

	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting gscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// The preset and band tables are static; a broken table is a build
	// defect, so fail immediately.
	if err := score.ValidateTables(); err != nil {
		slog.Error("scoring table validation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"preset", cfg.Scoring.DefaultPreset,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Hydrate the in-memory historical series
	series := history.NewService(repo, cfg.Ingest.HistoryDays, cfg.Scoring.DeltaLookbackDays)
	if err := series.Hydrate(ctx); err != nil {
		slog.Warn("history hydration failed, starting empty", "error", err)
	}
	slog.Info("history series hydrated", "rows", series.Len())

	// Initialize Alert Engine
	engine, err := alerts.NewEngine(5)
	if err != nil {
		slog.Error("failed to initialize alert engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadAlertRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load alert rules", "error", err)
		os.Exit(1)
	}
	slog.Info("alert engine initialized", "rules_count", engine.RulesCount())

	runner := alerts.NewRunner(engine, repo, cacheImpl, busImpl, logger)
	runner.MinFactorCount = cfg.Scoring.MinFactorCount

	// Initialize the refresh pipeline and its worker pool
	pipeline := ingest.NewPipeline(ingest.PipelineDeps{
		Fetcher:      ingest.NewFetcher(cfg.Ingest),
		Repo:         repo,
		Cache:        cacheImpl,
		Bus:          busImpl,
		Series:       series,
		Alerts:       runner,
		Logger:       logger,
		TTLOverrides: cfg.Scoring.TTLOverrides,
		CacheTTL:     cfg.Cache.LocalTTL,
	})

	pool := ingest.NewPool(busImpl, pipeline, cfg.Ingest.Workers, cfg.Ingest.QueueSize, logger)
	if err := pool.Start(); err != nil {
		slog.Error("failed to start ingest workers", "error", err)
		os.Exit(1)
	}
	slog.Info("ingest workers started", "workers", cfg.Ingest.Workers)

	scheduler := ingest.NewScheduler(pool, cfg.Ingest.Schedule, logger)
	if cfg.Ingest.Schedule != "" && cfg.Ingest.SnapshotURL != "" {
		if err := scheduler.Start(); err != nil {
			slog.Error("failed to start refresh scheduler", "error", err)
			os.Exit(1)
		}
		slog.Info("refresh scheduler started", "schedule", cfg.Ingest.Schedule)
	}

	if cfg.Ingest.RunOnStart && cfg.Ingest.SnapshotURL != "" {
		if err := pool.EnqueueWithHistory("startup"); err != nil {
			slog.Warn("startup refresh not queued", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.HandlerDeps{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Series:    series,
		Engine:    engine,
		Scoring:   cfg.Scoring,
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		CacheTTL:  cfg.Cache.LocalTTL,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("gscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	scheduler.Stop()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("gscore shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// loadAlertRules loads rules from the database into the engine. An empty
// database is seeded with the builtin starter rules.
func loadAlertRules(ctx context.Context, repo domain.Repository, engine *alerts.Engine) error {
	dbRules, err := repo.ListAlertRules(ctx)
	if err != nil {
		slog.Warn("failed to list alert rules from database", "error", err)
		return nil // start with empty rules, they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading alert rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	seeded := alerts.DefaultRules()
	slog.Info("seeding builtin alert rules", "count", len(seeded))
	for _, rule := range seeded {
		if err := repo.SaveAlertRule(ctx, rule); err != nil {
			slog.Warn("failed to persist builtin rule", "rule", rule.ID, "error", err)
		}
	}
	return engine.LoadRules(seeded)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               📊 GSCORE                   ║")
	fmt.Println("  ║      Bitcoin Risk Dashboard Engine        ║")
	fmt.Println("  ║      One number for the whole cycle.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Preset:   %s\n", cfg.Scoring.DefaultPreset)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /score              - Latest composite score")
	fmt.Println("    POST /score/preview      - What-if recomputation")
	fmt.Println("    GET  /factors            - Factor detail + staleness")
	fmt.Println("    GET  /deltas             - Day-over-day factor deltas")
	fmt.Println("    GET  /history            - Historical series")
	fmt.Println("    GET  /history/stats      - Window statistics")
	fmt.Println("    GET  /bands              - Risk band definitions")
	fmt.Println("    GET  /presets            - Weight presets")
	fmt.Println("    POST /refresh            - Manual ingest trigger")
	fmt.Println("    GET  /alerts             - List alert rules")
	fmt.Println("    POST /alerts             - Create an alert rule")
	fmt.Println("    GET  /alerts/events      - Recent fired alerts")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println()
}
