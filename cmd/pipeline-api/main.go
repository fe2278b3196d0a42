package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"ecommerce-analytics-pipeline/internal/api"
	"ecommerce-analytics-pipeline/internal/api/handler"
	"ecommerce-analytics-pipeline/internal/app"
	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/internal/store"
	"ecommerce-analytics-pipeline/pkg/logger"
	"ecommerce-analytics-pipeline/pkg/metrics"
	"ecommerce-analytics-pipeline/pkg/tracing"
)

// HTTP server timeouts.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.Tracing, os.Stderr)
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	runs, err := store.OpenRunStore(ctx, cfg.API.RunsDB)
	if err != nil {
		log.Error("failed to open run history", "path", cfg.API.RunsDB, "error", err)
		os.Exit(1)
	}
	defer runs.Close()

	lock, err := app.NewLocker(ctx, cfg.Lock, log)
	if err != nil {
		log.Error("failed to initialize run lock", "error", err)
		os.Exit(1)
	}
	defer lock.Close()

	m := metrics.NewManager()
	m.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	runner := app.NewRunner(cfg, log, m, lock, app.WithRunStore(runs))
	h := handler.NewPipelineHandler(runs, runner, cfg.Pipeline.OutputDir, log)

	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewRouter(h, m, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "addr", cfg.API.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	// Background runs finish and record their results before the stores close.
	runner.Wait()
	log.Info("server stopped")
}
