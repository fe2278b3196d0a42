package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"ecommerce-analytics-pipeline/internal/config"
	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/internal/source"
	"ecommerce-analytics-pipeline/internal/store"
)

type memExtractor struct {
	records map[model.RecordKind][]model.RawRecord
	fail    map[model.RecordKind]error
	closes  atomic.Int32
}

func (m *memExtractor) Extract(_ context.Context, kind model.RecordKind) ([]model.RawRecord, error) {
	if err := m.fail[kind]; err != nil {
		return nil, err
	}
	return m.records[kind], nil
}

func (m *memExtractor) Close() error {
	m.closes.Add(1)
	return nil
}

// countingSink counts Close calls and keeps the wrapped sink open so tests
// can inspect it after the run. insertErr and upsertErr make the matching
// write fail.
type countingSink struct {
	store.Sink
	closes    atomic.Int32
	insertErr error
	upsertErr error
}

func (c *countingSink) InsertBatch(ctx context.Context, table string, rows []store.Row, batchSize int) (int, error) {
	if c.insertErr != nil {
		return 0, &store.SinkError{Op: "insert", Table: table, Err: c.insertErr}
	}
	return c.Sink.InsertBatch(ctx, table, rows, batchSize)
}

func (c *countingSink) UpsertBatch(ctx context.Context, table string, rows []store.Row, conflictKeys []string) (int, error) {
	if c.upsertErr != nil {
		return 0, &store.SinkError{Op: "upsert", Table: table, Err: c.upsertErr}
	}
	return c.Sink.UpsertBatch(ctx, table, rows, conflictKeys)
}

func (c *countingSink) Close() error {
	c.closes.Add(1)
	return nil
}

func rawFixture() map[model.RecordKind][]model.RawRecord {
	return map[model.RecordKind][]model.RawRecord{
		model.KindTransactions: {
			{"transaction_id": "t1", "user_id": "u1", "product_id": "p1", "amount": 120.0, "currency": "USD",
				"payment_method": "credit_card", "status": "completed", "timestamp": "2024-01-01T08:00:00Z"},
			{"transaction_id": "t2", "user_id": "u1", "product_id": "p2", "amount": 85.0, "currency": "EUR",
				"payment_method": "paypal", "status": "completed", "timestamp": "2024-01-01T09:30:00Z"},
			{"transaction_id": "bad", "user_id": "u1", "product_id": "p1", "amount": -5.0, "currency": "USD",
				"payment_method": "paypal", "status": "completed", "timestamp": "2024-01-01T09:30:00Z"},
		},
		model.KindUsers: {
			{"user_id": "u1", "email": "a@b.com", "country": "US", "customer_tier": "premium", "registration_date": "2023-06-01"},
		},
		model.KindProducts: {
			{"product_id": "p1", "name": "Lamp", "price": 100.0, "currency": "USD", "inventory_count": 4.0},
			{"product_id": "p2", "name": "Mug", "price": 40.0, "currency": "EUR"},
		},
	}
}

type harness struct {
	src        *memExtractor
	relational *countingSink
	analytical *countingSink
	orch       *Orchestrator
}

func newHarness(ctx context.Context, src *memExtractor, opts ...Option) *harness {
	rel, err := store.OpenSQLite(ctx, ":memory:")
	So(err, ShouldBeNil)
	ana, err := store.OpenSQLite(ctx, ":memory:")
	So(err, ShouldBeNil)
	Reset(func() {
		rel.Close()
		ana.Close()
	})

	h := &harness{
		src:        src,
		relational: &countingSink{Sink: rel},
		analytical: &countingSink{Sink: ana},
	}
	opts = append([]Option{WithClock(clock)}, opts...)
	h.orch = NewOrchestrator(config.New(), src, h.relational, h.analytical, opts...)
	return h
}

func (h *harness) assertTornDownOnce() {
	So(h.src.closes.Load(), ShouldEqual, 1)
	So(h.relational.closes.Load(), ShouldEqual, 1)
	So(h.analytical.closes.Load(), ShouldEqual, 1)
}

func TestOrchestrator(t *testing.T) {
	ctx := context.Background()

	Convey("Given valid sources and sinks", t, func() {
		h := newHarness(ctx, &memExtractor{records: rawFixture()})
		So(h.orch.State(), ShouldEqual, StateIdle)

		result := h.orch.Run(ctx, "run-1")

		Convey("Then the run completes through every stage", func() {
			So(result.Status, ShouldEqual, model.StatusCompleted)
			So(result.Succeeded(), ShouldBeTrue)
			So(result.Errors, ShouldBeEmpty)
			So(h.orch.State(), ShouldEqual, StateCompleted)
			So(len(result.Stages), ShouldEqual, 5)
			for _, s := range result.Stages {
				So(s.Success, ShouldBeTrue)
			}
		})

		Convey("Then invalid records are dropped at extraction", func() {
			ext := result.Stages[model.StageExtraction].Details
			So(ext["records_dropped"], ShouldEqual, 1)
			So(ext["records_read"].(map[string]int)[string(model.KindTransactions)], ShouldEqual, 3)
			So(ext["records_extracted"].(map[string]int)[string(model.KindTransactions)], ShouldEqual, 2)
		})

		Convey("Then throughput counts only validated records", func() {
			So(result.PerformanceMetrics.TotalRecordsProcessed, ShouldEqual, 5)
		})

		Convey("Then a fixed clock yields zero throughput instead of dividing by zero", func() {
			So(result.DurationSeconds, ShouldEqual, 0)
			So(result.PerformanceMetrics.RecordsPerSecond, ShouldEqual, 0)
			So(len(result.PerformanceMetrics.StageDurations), ShouldEqual, 5)
		})

		Convey("Then base records land in the relational sink", func() {
			n, err := store.CountRows(ctx, h.relational, store.TableTransactions)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			counts := result.Stages[model.StageLoading].Details["table_counts"].(map[string]int64)
			So(counts[store.TableProducts], ShouldEqual, 2)
		})

		Convey("Then summary tables and quality metrics land in the analytical sink", func() {
			for table, want := range map[string]int64{
				store.TableDailySales:         1,
				store.TableUserAnalytics:      1,
				store.TableProductPerformance: 2,
				store.TableFinancialReports:   1,
				store.TableQualityMetrics:     1,
			} {
				n, err := store.CountRows(ctx, h.analytical, table)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, want)
			}
			So(h.orch.Tables(), ShouldNotBeNil)
			So(result.DataQualityScores[model.ScoreOverall], ShouldEqual, 1.0)
			So(len(result.DataQualityScores), ShouldEqual, 5)
		})

		Convey("Then resources are released exactly once", func() {
			h.assertTornDownOnce()
		})

		Convey("Then a second run is refused without touching resources", func() {
			again := h.orch.Run(ctx, "run-2")
			So(again.Status, ShouldEqual, model.StatusFailed)
			So(again.Errors, ShouldResemble, []string{ErrAlreadyRun.Error()})
			h.assertTornDownOnce()
		})
	})

	Convey("Given a source that cannot find the transactions", t, func() {
		missing := &source.SourceError{Kind: source.ErrNotFound, Record: model.KindTransactions, Location: "nope.json", Err: errors.New("no such file")}
		h := newHarness(ctx, &memExtractor{
			records: rawFixture(),
			fail:    map[model.RecordKind]error{model.KindTransactions: missing},
		})

		result := h.orch.Run(ctx, "run-x")

		Convey("Then the run fails at extraction and skips everything after", func() {
			So(result.Status, ShouldEqual, model.StatusFailed)
			So(h.orch.State(), ShouldEqual, StateFailed)
			So(len(result.Stages), ShouldEqual, 1)
			So(result.Stages[model.StageExtraction].Success, ShouldBeFalse)
			So(len(result.Errors), ShouldEqual, 1)
			So(result.Errors[0], ShouldContainSubstring, "extraction stage failed")
			So(result.DataQualityScores, ShouldBeEmpty)
			So(result.PerformanceMetrics, ShouldNotBeNil)
			So(result.PerformanceMetrics.TotalRecordsProcessed, ShouldEqual, 0)
			So(h.orch.Tables(), ShouldBeNil)
			h.assertTornDownOnce()
		})

		Convey("Then the quality scores serialize as an empty object", func() {
			raw, err := json.Marshal(result)
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"data_quality_scores":{}`)
		})
	})

	Convey("Given a relational sink that rejects inserts", t, func() {
		h := newHarness(ctx, &memExtractor{records: rawFixture()})
		diskFull := errors.New("disk full")
		h.relational.insertErr = diskFull

		result := h.orch.Run(ctx, "run-load")

		Convey("Then the run fails at loading and keeps the earlier stage results", func() {
			So(result.Status, ShouldEqual, model.StatusFailed)
			So(h.orch.State(), ShouldEqual, StateFailed)
			So(len(result.Stages), ShouldEqual, 3)
			So(result.Stages[model.StageExtraction].Success, ShouldBeTrue)
			So(result.Stages[model.StageTransformation].Success, ShouldBeTrue)
			So(result.Stages[model.StageLoading].Success, ShouldBeFalse)
			_, scored := result.Stages[model.StageQualityValidation]
			So(scored, ShouldBeFalse)
			_, built := result.Stages[model.StageAnalyticsCreation]
			So(built, ShouldBeFalse)
		})

		Convey("Then the stage error is recorded", func() {
			So(len(result.Errors), ShouldEqual, 1)
			So(result.Errors[0], ShouldContainSubstring, "loading stage failed")
			So(result.Errors[0], ShouldContainSubstring, "disk full")
			So(result.Stages[model.StageLoading].Error, ShouldContainSubstring, store.TableTransactions)
			So(result.DataQualityScores, ShouldBeEmpty)
			So(h.orch.Tables(), ShouldBeNil)
		})

		Convey("Then resources are still released exactly once", func() {
			h.assertTornDownOnce()
		})
	})

	Convey("Given an analytical sink that rejects upserts", t, func() {
		h := newHarness(ctx, &memExtractor{records: rawFixture()})
		h.analytical.upsertErr = errors.New("connection reset")

		result := h.orch.Run(ctx, "run-agg")

		Convey("Then the run fails at the last stage after every earlier stage succeeded", func() {
			So(result.Status, ShouldEqual, model.StatusFailed)
			So(h.orch.State(), ShouldEqual, StateFailed)
			So(len(result.Stages), ShouldEqual, 5)
			for _, name := range []string{model.StageExtraction, model.StageTransformation, model.StageLoading, model.StageQualityValidation} {
				So(result.Stages[name].Success, ShouldBeTrue)
			}
			So(result.Stages[model.StageAnalyticsCreation].Success, ShouldBeFalse)
		})

		Convey("Then the stage error is recorded and quality scores are kept", func() {
			So(len(result.Errors), ShouldEqual, 1)
			So(result.Errors[0], ShouldContainSubstring, "analytics_creation stage failed")
			So(result.Errors[0], ShouldContainSubstring, "connection reset")
			So(result.DataQualityScores[model.ScoreOverall], ShouldEqual, 1.0)
		})

		Convey("Then resources are still released exactly once", func() {
			h.assertTornDownOnce()
		})
	})

	Convey("Given transactions older than the SLA window", t, func() {
		stale := rawFixture()
		for _, rec := range stale[model.KindTransactions] {
			rec["timestamp"] = "2023-01-01T00:00:00Z"
		}
		h := newHarness(ctx, &memExtractor{records: stale})

		result := h.orch.Run(ctx, "run-stale")

		Convey("Then the quality gate fails after loading and aggregates are not built", func() {
			So(result.Status, ShouldEqual, model.StatusFailed)
			So(result.Stages[model.StageLoading].Success, ShouldBeTrue)
			So(result.Stages[model.StageQualityValidation].Success, ShouldBeFalse)
			_, built := result.Stages[model.StageAnalyticsCreation]
			So(built, ShouldBeFalse)
			So(result.Errors[0], ShouldContainSubstring, "timeliness")
			So(result.DataQualityScores[model.DimensionTimeliness], ShouldEqual, 0.0)
			So(result.DataQualityScores, ShouldContainKey, model.ScoreOverall)
			h.assertTornDownOnce()
		})
	})

	Convey("Given a cancelled context", t, func() {
		h := newHarness(ctx, &memExtractor{records: rawFixture()})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		result := h.orch.Run(cctx, "run-cancel")

		Convey("Then the failure is captured in the result, not returned", func() {
			So(result.Status, ShouldEqual, model.StatusFailed)
			So(result.Errors, ShouldNotBeEmpty)
			h.assertTornDownOnce()
		})
	})
}
