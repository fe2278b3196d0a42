// Package pipeline turns validated e-commerce records into enriched rows,
// quality scores and summary tables, and sequences the stages of a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/internal/source"
	"ecommerce-analytics-pipeline/internal/store"
	"ecommerce-analytics-pipeline/pkg/logger"
	"ecommerce-analytics-pipeline/pkg/metrics"
	"ecommerce-analytics-pipeline/pkg/tracing"
)

// State is a position in the run state machine.
type State string

const (
	StateIdle               State = "idle"
	StateExtracting         State = "extracting"
	StateTransforming       State = "transforming"
	StateLoading            State = "loading"
	StateValidatingQuality  State = "validating_quality"
	StateBuildingAggregates State = "building_aggregates"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// ErrAlreadyRun is recorded when Run is called on a used orchestrator.
var ErrAlreadyRun = errors.New("orchestrator already ran")

// StageError is a failed stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Extractor yields raw records per kind. *source.Source satisfies it.
type Extractor interface {
	Extract(ctx context.Context, kind model.RecordKind) ([]model.RawRecord, error)
	Close() error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock replaces time.Now for stage timing, report dates and timeliness.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTracer sets the tracer used for stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// Orchestrator runs the stages of one pipeline run in order. It owns the
// source and both sinks and closes them exactly once when Run returns.
// An Orchestrator is single use.
type Orchestrator struct {
	cfg        *config.Config
	source     Extractor
	relational store.Sink
	analytical store.Sink

	log     *logger.Logger
	metrics *metrics.Manager
	tracer  trace.Tracer
	now     func() time.Time

	mu    sync.Mutex
	state State

	teardownOnce sync.Once
	teardownErr  error

	tables *model.AnalyticsTables
}

// NewOrchestrator wires an orchestrator over its external resources.
func NewOrchestrator(cfg *config.Config, src Extractor, relational, analytical store.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		source:     src,
		relational: relational,
		analytical: analytical,
		log:        logger.NewNop(),
		tracer:     tracing.Tracer(),
		now:        time.Now,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Tables returns the summary tables of the last run, or nil when the run did
// not reach the aggregate stage.
func (o *Orchestrator) Tables() *model.AnalyticsTables {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tables
}

// runData carries stage outputs forward within one run.
type runData struct {
	runID        string
	dataset      Dataset
	extracted    int
	transformed  *Transformed
	quality      model.QualityReport
	qualityScore bool
	tables       *model.AnalyticsTables
}

type stageFunc func(ctx context.Context, d *runData) (map[string]interface{}, error)

type stage struct {
	name  string
	state State
	run   stageFunc
}

// Run executes the pipeline and always returns a result. Failures of any
// kind are captured in it rather than returned.
func (o *Orchestrator) Run(ctx context.Context, runID string) *model.PipelineResult {
	start := o.now()
	result := newResult(runID, start)
	log := o.log.With("run_id", runID)

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		result.Errors = append(result.Errors, ErrAlreadyRun.Error())
		finishResult(result, model.StatusFailed, o.now(), 0)
		return result
	}
	o.state = StateExtracting
	o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	d := &runData{runID: runID}
	defer func() {
		if err := o.teardown(); err != nil {
			log.Warn("teardown failed", "error", err)
		}
	}()

	log.Info("pipeline started")
	stages := []stage{
		{model.StageExtraction, StateExtracting, o.extract},
		{model.StageTransformation, StateTransforming, o.transform},
		{model.StageLoading, StateLoading, o.load},
		{model.StageQualityValidation, StateValidatingQuality, o.validateQuality},
		{model.StageAnalyticsCreation, StateBuildingAggregates, o.buildAggregates},
	}

	status := model.StatusCompleted
	for _, s := range stages {
		if err := o.runStage(ctx, log, result, d, s); err != nil {
			status = model.StatusFailed
			break
		}
	}

	if d.qualityScore {
		result.DataQualityScores = d.quality.Scores()
	}
	finishResult(result, status, o.now(), d.extracted)

	o.mu.Lock()
	o.tables = d.tables
	o.mu.Unlock()

	if status == model.StatusCompleted {
		o.setState(StateCompleted)
		log.Info("pipeline completed", "duration_seconds", result.DurationSeconds)
	} else {
		o.setState(StateFailed)
		span.SetStatus(codes.Error, strings.Join(result.Errors, "; "))
		log.Error("pipeline failed", "errors", result.Errors)
	}
	o.metrics.IncRun(status)
	return result
}

// runStage executes one stage and records its StageResult. The returned
// error is the StageError already appended to the result.
func (o *Orchestrator) runStage(ctx context.Context, log *logger.Logger, result *model.PipelineResult, d *runData, s stage) error {
	o.setState(s.state)
	ctx, span := o.tracer.Start(ctx, "pipeline."+s.name)
	defer span.End()

	log.Info("stage started", "stage", s.name)
	start := o.now()
	details, err := s.run(ctx, d)
	end := o.now()

	var stageErr error
	if err != nil {
		stageErr = &StageError{Stage: s.name, Err: err}
	}
	sr := model.NewStageResult(start, end, details, stageErr)
	result.Stages[s.name] = sr
	o.metrics.ObserveStage(s.name, sr.DurationSeconds, sr.Success)

	if stageErr != nil {
		span.RecordError(stageErr)
		span.SetStatus(codes.Error, stageErr.Error())
		result.Errors = append(result.Errors, stageErr.Error())
		log.Error("stage failed", "stage", s.name, "error", err, "duration_seconds", sr.DurationSeconds)
		return stageErr
	}
	log.Info("stage finished", "stage", s.name, "duration_seconds", sr.DurationSeconds)
	return nil
}

// teardown closes the source and sinks once.
func (o *Orchestrator) teardown() error {
	o.teardownOnce.Do(func() {
		var errs []error
		if o.source != nil {
			if err := o.source.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close source: %w", err))
			}
		}
		for name, s := range map[string]store.Sink{"relational": o.relational, "analytical": o.analytical} {
			if s == nil {
				continue
			}
			if err := s.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s sink: %w", name, err))
			}
		}
		o.teardownErr = errors.Join(errs...)
	})
	return o.teardownErr
}

// ------------------- stages -------------------

func (o *Orchestrator) extract(ctx context.Context, d *runData) (map[string]interface{}, error) {
	if o.source == nil {
		return nil, errors.New("no source configured")
	}
	validator := source.NewValidator(o.cfg.BusinessRules)
	read := make(map[string]int, len(model.AllKinds))
	extracted := make(map[string]int, len(model.AllKinds))
	dropped := 0

	for _, kind := range model.AllKinds {
		raw, err := o.source.Extract(ctx, kind)
		if err != nil {
			return map[string]interface{}{"records_read": read, "records_extracted": extracted}, fmt.Errorf("extract %s: %w", kind, err)
		}
		read[string(kind)] = len(raw)

		var invalid []*source.ValidationError
		switch kind {
		case model.KindTransactions:
			d.dataset.Transactions, invalid = source.Partition(validator.Transactions(raw))
			extracted[string(kind)] = len(d.dataset.Transactions)
		case model.KindUsers:
			d.dataset.Users, invalid = source.Partition(validator.Users(raw))
			extracted[string(kind)] = len(d.dataset.Users)
		case model.KindProducts:
			d.dataset.Products, invalid = source.Partition(validator.Products(raw))
			extracted[string(kind)] = len(d.dataset.Products)
		}
		for _, ve := range invalid {
			o.log.Warn("record dropped", "kind", kind, "record_id", ve.RecordID, "field", ve.Field, "reason", ve.Reason)
		}
		// Only records that passed validation count toward throughput.
		d.extracted += extracted[string(kind)]
		dropped += len(invalid)
		o.metrics.AddRecords(model.StageExtraction, string(kind), extracted[string(kind)])
		o.metrics.AddDropped(string(kind), len(invalid))
	}

	return map[string]interface{}{
		"records_read":      read,
		"records_extracted": extracted,
		"records_dropped":   dropped,
	}, nil
}

func (o *Orchestrator) transform(ctx context.Context, d *runData) (map[string]interface{}, error) {
	t := NewTransformer(o.now, o.cfg.Pipeline.AggregationWorkers, o.log)
	out, err := t.Transform(ctx, d.dataset)
	if err != nil {
		return nil, err
	}
	d.transformed = out

	o.metrics.AddRecords(model.StageTransformation, string(model.KindTransactions), len(out.Transactions))
	o.metrics.AddRecords(model.StageTransformation, string(model.KindUsers), len(out.Users))
	o.metrics.AddRecords(model.StageTransformation, string(model.KindProducts), len(out.Products))
	o.metrics.AddEnrichmentMisses("user", out.Misses.UserMisses)
	o.metrics.AddEnrichmentMisses("product", out.Misses.ProductMisses)

	return map[string]interface{}{
		"records_transformed": map[string]int{
			string(model.KindTransactions): len(out.Transactions),
			string(model.KindUsers):        len(out.Users),
			string(model.KindProducts):     len(out.Products),
		},
		"enrichment_misses": out.Misses,
	}, nil
}

func (o *Orchestrator) load(ctx context.Context, d *runData) (map[string]interface{}, error) {
	if o.relational == nil {
		return nil, errors.New("no relational sink configured")
	}
	batches := []struct {
		table string
		rows  []store.Row
	}{
		{store.TableTransactions, toRows(d.transformed.Transactions)},
		{store.TableUsers, toRows(d.transformed.Users)},
		{store.TableProducts, toRows(d.transformed.Products)},
	}

	inserted := make(map[string]int, len(batches))
	counts := make(map[string]int64, len(batches))
	for _, b := range batches {
		n, err := o.relational.InsertBatch(ctx, b.table, b.rows, o.cfg.Pipeline.BatchSize)
		if err != nil {
			return map[string]interface{}{"rows_inserted": inserted}, err
		}
		inserted[b.table] = n
		o.metrics.AddRecords(model.StageLoading, b.table, n)

		total, err := store.CountRows(ctx, o.relational, b.table)
		if err != nil {
			return map[string]interface{}{"rows_inserted": inserted}, err
		}
		counts[b.table] = total
	}
	return map[string]interface{}{
		"rows_inserted": inserted,
		"table_counts":  counts,
	}, nil
}

func (o *Orchestrator) validateQuality(_ context.Context, d *runData) (map[string]interface{}, error) {
	scorer := NewQualityScorer(o.cfg.Quality, o.cfg.BusinessRules, o.cfg.Pipeline.SLAWindow, o.now)
	report := scorer.Score(d.transformed.Transactions, d.transformed.Users, d.transformed.Products)
	d.quality = report
	d.qualityScore = true

	dims := report.Dimensions()
	var failed []string
	for name, dim := range dims {
		o.metrics.SetQualityScore(name, dim.Score)
		if !dim.Passed {
			failed = append(failed, fmt.Sprintf("%s %.4f < %.2f", name, dim.Score, dim.Threshold))
		}
	}
	o.metrics.SetQualityScore("overall", report.OverallScore)
	sort.Strings(failed)

	details := map[string]interface{}{
		"overall_score": report.OverallScore,
		"dimensions":    dims,
		"summary": map[string]int{
			"total_tests":  len(dims),
			"passed_tests": report.PassedCount(),
			"failed_tests": len(dims) - report.PassedCount(),
		},
	}
	if len(failed) > 0 {
		return details, fmt.Errorf("quality gate failed: %s", strings.Join(failed, ", "))
	}
	return details, nil
}

func (o *Orchestrator) buildAggregates(ctx context.Context, d *runData) (map[string]interface{}, error) {
	if o.analytical == nil {
		return nil, errors.New("no analytical sink configured")
	}
	agg := NewAggregator(o.cfg.Pipeline.AggregationWorkers, o.now, o.log)
	tables, err := agg.Build(ctx, d.transformed.Transactions, d.transformed.Users, d.transformed.Products)
	if err != nil {
		return nil, err
	}
	d.tables = tables

	writes := []struct {
		table string
		rows  []store.Row
	}{
		{store.TableDailySales, toRows(tables.DailySales)},
		{store.TableUserAnalytics, toRows(tables.UserAnalytics)},
		{store.TableProductPerformance, toRows(tables.ProductPerformance)},
		{store.TableFinancialReports, toRows(tables.FinancialReports)},
		{store.TableQualityMetrics, []store.Row{qualityRow(d.runID, o.now(), d.quality)}},
	}

	written := make(map[string]int, len(writes))
	for _, w := range writes {
		n, err := o.analytical.UpsertBatch(ctx, w.table, w.rows, store.Tables[w.table].PrimaryKey)
		if err != nil {
			return map[string]interface{}{"rows_written": written}, err
		}
		written[w.table] = n
	}

	return map[string]interface{}{
		"analytics_tables_created": 4,
		"rows_written":             written,
	}, nil
}

func qualityRow(runID string, at time.Time, q model.QualityReport) store.Row {
	return store.Row{
		"run_id":         runID,
		"measured_at":    at.UTC(),
		"overall_score":  q.OverallScore,
		"completeness":   q.Completeness.Score,
		"accuracy":       q.Accuracy.Score,
		"consistency":    q.Consistency.Score,
		"timeliness":     q.Timeliness.Score,
		"business_rules": q.BusinessRules.Score,
		"passed_checks":  q.PassedCount(),
		"total_checks":   len(q.Dimensions()),
	}
}

type rowMapper interface {
	Row() map[string]interface{}
}

func toRows[T rowMapper](items []T) []store.Row {
	rows := make([]store.Row, len(items))
	for i, it := range items {
		rows[i] = it.Row()
	}
	return rows
}
