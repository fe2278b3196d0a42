// Package app wires configuration into a runnable pipeline: it opens the
// source and sinks, guards runs with a lock, records run history and writes
// run artifacts.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/internal/pipeline"
	"ecommerce-analytics-pipeline/internal/source"
	"ecommerce-analytics-pipeline/internal/store"
	"ecommerce-analytics-pipeline/pkg/logger"
	"ecommerce-analytics-pipeline/pkg/metrics"
)

// Trigger names recorded in the run history.
const (
	TriggerCLI = "cli"
	TriggerAPI = "api"
)

// SinkOpener opens a sink from its configuration.
type SinkOpener func(ctx context.Context, cfg config.SinkConfig) (store.Sink, error)

// Runner executes pipeline runs.
type Runner struct {
	cfg      *config.Config
	log      *logger.Logger
	metrics  *metrics.Manager
	lock     Locker
	runs     *store.RunStore
	exporter *pipeline.Exporter
	openSink SinkOpener
	opts     []pipeline.Option

	wg sync.WaitGroup
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunStore records every run in runs.
func WithRunStore(runs *store.RunStore) RunnerOption {
	return func(r *Runner) { r.runs = runs }
}

// WithSinkOpener replaces store.Open.
func WithSinkOpener(open SinkOpener) RunnerOption {
	return func(r *Runner) { r.openSink = open }
}

// WithPipelineOptions passes options to every orchestrator.
func WithPipelineOptions(opts ...pipeline.Option) RunnerOption {
	return func(r *Runner) { r.opts = append(r.opts, opts...) }
}

// NewRunner builds a Runner. A nil lock means an in-process lock.
func NewRunner(cfg *config.Config, log *logger.Logger, m *metrics.Manager, lock Locker, opts ...RunnerOption) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	if lock == nil {
		lock = NewLocalLock()
	}
	r := &Runner{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		lock:     lock,
		exporter: pipeline.NewExporter(cfg.Pipeline.OutputDir, cfg.Pipeline.ExportCSV, log),
		openSink: store.Open,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRunID returns a fresh run id.
func NewRunID() string {
	return uuid.NewString()
}

// Run executes one pipeline run synchronously. An error means the run could
// not start (lock held, sinks unreachable); otherwise the outcome is in the
// returned result.
func (r *Runner) Run(ctx context.Context, trigger string) (*model.PipelineResult, error) {
	release, err := r.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.release(release)

	runID := NewRunID()
	if err := r.createRun(ctx, runID, trigger); err != nil {
		return nil, err
	}
	return r.execute(ctx, runID)
}

// Start launches a run in the background and returns its id once the lock is
// held and the run is recorded.
func (r *Runner) Start(ctx context.Context, trigger string) (string, error) {
	release, err := r.lock.Acquire(ctx)
	if err != nil {
		return "", err
	}

	runID := NewRunID()
	if err := r.createRun(ctx, runID, trigger); err != nil {
		r.release(release)
		return "", err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(release)
		if _, err := r.execute(context.WithoutCancel(ctx), runID); err != nil {
			r.log.Error("background run failed to start", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

// Wait blocks until every background run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) release(release Release) {
	if err := release(context.Background()); err != nil {
		r.log.Warn("lock release failed", "error", err)
	}
}

func (r *Runner) createRun(ctx context.Context, runID, trigger string) error {
	if r.runs == nil {
		return nil
	}
	if err := r.runs.CreateRun(ctx, runID, trigger); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, runID string) (*model.PipelineResult, error) {
	log := r.log.With("run_id", runID)

	relational, analytical, err := r.openSinks(ctx)
	if err != nil {
		r.abort(ctx, runID, err)
		return nil, err
	}

	rc := model.RetryConfig{MaxRetries: r.cfg.Pipeline.MaxRetries, Delay: r.cfg.Pipeline.RetryDelay}
	src := source.New(r.cfg.Sources, rc, log, r.metrics)

	opts := append([]pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithMetrics(r.metrics),
	}, r.opts...)
	orch := pipeline.NewOrchestrator(r.cfg, src, relational, analytical, opts...)
	result := orch.Run(ctx, runID)

	for _, e := range r.exporter.Export(result, orch.Tables()) {
		if !e.Success {
			log.Warn("artifact not written", "path", e.Path, "error", e.Error)
		}
	}
	if r.runs != nil {
		if err := r.runs.FinishRun(ctx, result); err != nil {
			log.Error("failed to record run result", "error", err)
		}
	}
	return result, nil
}

func (r *Runner) openSinks(ctx context.Context) (store.Sink, store.Sink, error) {
	relational, err := r.openSink(ctx, r.cfg.Database.Relational)
	if err != nil {
		return nil, nil, fmt.Errorf("open relational sink: %w", err)
	}
	analytical, err := r.openSink(ctx, r.cfg.Database.Analytical)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("open analytical sink: %w", err), relational.Close())
	}
	return relational, analytical, nil
}

// abort marks a recorded run as failed before any stage ran.
func (r *Runner) abort(ctx context.Context, runID string, cause error) {
	r.log.Error("run aborted", "run_id", runID, "error", cause)
	r.metrics.IncRun(model.StatusFailed)
	if r.runs == nil {
		return
	}
	if err := r.runs.SaveRunError(ctx, runID, cause); err != nil {
		r.log.Warn("failed to record run error", "run_id", runID, "error", err)
	}
	if err := r.runs.UpdateRunStatus(ctx, runID, model.StatusFailed); err != nil {
		r.log.Warn("failed to update run status", "run_id", runID, "error", err)
	}
}
