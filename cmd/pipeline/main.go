package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ecommerce-analytics-pipeline/internal/app"
	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/internal/store"
	"ecommerce-analytics-pipeline/pkg/logger"
	"ecommerce-analytics-pipeline/pkg/metrics"
	"ecommerce-analytics-pipeline/pkg/tracing"
)

const usage = `usage: pipeline run [-config file] [-no-history]

Runs the e-commerce analytics pipeline once. Exits 0 only when the run
completes.`

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	if len(args) == 0 || args[0] != "run" {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (overrides "+config.EnvConfigPath+")")
	noHistory := fs.Bool("no-history", false, "do not record the run in the run-history database")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if *configPath != "" {
		os.Setenv(config.EnvConfigPath, *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.Tracing, os.Stderr)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	lock, err := app.NewLocker(ctx, cfg.Lock, log)
	if err != nil {
		log.Error("failed to initialize run lock", "error", err)
		return 1
	}
	defer lock.Close()

	opts := []app.RunnerOption{}
	if !*noHistory {
		runs, err := store.OpenRunStore(ctx, cfg.API.RunsDB)
		if err != nil {
			log.Error("failed to open run history", "path", cfg.API.RunsDB, "error", err)
			return 1
		}
		defer runs.Close()
		opts = append(opts, app.WithRunStore(runs))
	}

	runner := app.NewRunner(cfg, log, metrics.NewManager(), lock, opts...)
	result, err := runner.Run(ctx, app.TriggerCLI)
	if errors.Is(err, app.ErrLockHeld) {
		log.Error("pipeline not started", "error", err)
		return 1
	}
	if err != nil {
		log.Error("pipeline failed to start", "error", err)
		return 1
	}

	log.Info("pipeline finished",
		"run_id", result.RunID,
		"status", result.Status,
		"duration_seconds", result.DurationSeconds,
		"errors", len(result.Errors),
	)
	if !result.Succeeded() {
		return 1
	}
	return 0
}
