package pipeline

import (
	"time"

	"ecommerce-analytics-pipeline/internal/model"
)

// newResult starts a running result.
func newResult(runID string, start time.Time) *model.PipelineResult {
	return &model.PipelineResult{
		RunID:     runID,
		Status:    model.StatusRunning,
		StartTime: start,
		Stages:    make(map[string]model.StageResult),
		Errors:    []string{},

		DataQualityScores: model.QualityScores{},
	}
}

// finishResult closes out a result with its final status, duration and
// performance metrics.
func finishResult(r *model.PipelineResult, status string, end time.Time, totalRecords int) {
	r.Status = status
	r.EndTime = &end
	r.DurationSeconds = end.Sub(r.StartTime).Seconds()
	r.PerformanceMetrics = PerformanceMetrics(r, totalRecords)
}

// PerformanceMetrics derives throughput from a finished result. Throughput is
// 0 when the run took no measurable time.
func PerformanceMetrics(r *model.PipelineResult, totalRecords int) *model.PerformanceMetrics {
	durations := make(map[string]float64, len(r.Stages))
	for name, stage := range r.Stages {
		durations[name] = stage.DurationSeconds
	}
	pm := &model.PerformanceMetrics{
		TotalDurationSeconds:  r.DurationSeconds,
		TotalRecordsProcessed: totalRecords,
		StageDurations:        durations,
	}
	if r.DurationSeconds > 0 {
		pm.RecordsPerSecond = float64(totalRecords) / r.DurationSeconds
	}
	return pm
}
