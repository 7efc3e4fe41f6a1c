// Cashops - Cash logistics cost estimation and simulation.
// Copyright (c) 2025 opensource.finance
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

	"github.com/opensource-finance/cashops/internal/api"
	"github.com/opensource-finance/cashops/internal/bus"
	"github.com/opensource-finance/cashops/internal/cache"
	"github.com/opensource-finance/cashops/internal/config"
	"github.com/opensource-finance/cashops/internal/domain"
	"github.com/opensource-finance/cashops/internal/repository"
	"github.com/opensource-finance/cashops/internal/risk"
	"github.com/opensource-finance/cashops/internal/rules"
	"github.com/opensource-finance/cashops/internal/simulate"
	"github.com/opensource-finance/cashops/internal/snapshot"
	"github.com/opensource-finance/cashops/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("CASHOPS_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting cashops",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"batch_size", cfg.Simulation.BatchSize,
		"seeded", cfg.Simulation.Seed != 0,
		"tracing", cfg.Tracing.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	// Initialize Rule Engine
	engine, err := rules.NewEngine(4)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := engine.LoadRules(rules.DefaultRiskRules()); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	processor := risk.NewProcessor()

	// Initialize Generator
	simCfg, err := simulate.ConfigFrom(cfg.Simulation)
	if err != nil {
		slog.Error("invalid simulation config", "error", err)
		os.Exit(1)
	}
	gen, err := simulate.New(simCfg)
	if err != nil {
		slog.Error("failed to initialize generator", "error", err)
		os.Exit(1)
	}

	snapshots := snapshot.New(gen, cacheImpl, engine, processor, snapshot.Options{
		BatchTTL:   cfg.Simulation.BatchTTL,
		HistoryTTL: cfg.Simulation.HistoryTTL,
		Bus:        busImpl,
	})

	// Archive worker consumes generated batches from the bus
	archiver := worker.NewWorker(busImpl, repo, processor, worker.DefaultConfig())
	if err := archiver.Start(); err != nil {
		slog.Error("failed to start archive worker", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Snapshots:  snapshots,
		Engine:     engine,
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Simulation: cfg.Simulation,
		Version:    Version,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("cashops is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the worker after the server
	if err := archiver.Stop(); err != nil {
		slog.Error("failed to stop archive worker", "error", err)
	}
	stats := archiver.GetStats()
	slog.Info("cashops shutdown complete",
		"archived", stats.Archived,
		"failed", stats.Failed,
		"alerts", stats.Alerts,
	)
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
	if os.Getenv("CASHOPS_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 CASHOPS                   |")
	fmt.Println("  |   Cash logistics cost and simulation      |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /estimate              - Price a single job")
	fmt.Println("    GET  /batch                 - Current simulated batch")
	fmt.Println("    POST /batch/refresh         - Drop cached batches")
	fmt.Println("    GET  /report                - Aggregates and risk assessment")
	fmt.Println("    GET  /history               - Daily rollup of simulated history")
	fmt.Println("    GET  /forecast              - Moving-average and trend projection")
	fmt.Println("    GET  /geography             - Regions, tiers and multipliers")
	fmt.Println("    GET  /rules                 - Loaded risk rules")
	fmt.Println("    GET  /runs                  - Archived runs")
	fmt.Println("    GET  /runs/{id}/export.csv  - Export an archived run")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
