package model

import "time"

// Pipeline statuses as persisted in the result.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Stage names, in execution order.
const (
	StageExtraction        = "extraction"
	StageTransformation    = "transformation"
	StageLoading           = "loading"
	StageQualityValidation = "quality_validation"
	StageAnalyticsCreation = "analytics_creation"
)

// StageResult records the outcome of one pipeline stage. It is created once
// when the stage ends and is not modified afterwards.
type StageResult struct {
	Success         bool                   `json:"success"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         time.Time              `json:"end_time"`
	DurationSeconds float64                `json:"duration_seconds"`
	Details         map[string]interface{} `json:"details,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// NewStageResult builds a StageResult from its boundaries.
func NewStageResult(start, end time.Time, details map[string]interface{}, err error) StageResult {
	r := StageResult{
		Success:         err == nil,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: end.Sub(start).Seconds(),
		Details:         details,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// ScoreOverall keys the overall score in QualityScores.
const ScoreOverall = "overall_score"

// QualityScores is the score summary attached to a pipeline result, keyed by
// dimension name and ScoreOverall. It stays empty when the run never reached
// the quality stage.
type QualityScores map[string]float64

// PerformanceMetrics is computed once from the stage durations after a run.
type PerformanceMetrics struct {
	TotalDurationSeconds  float64            `json:"total_duration_seconds"`
	TotalRecordsProcessed int                `json:"total_records_processed"`
	RecordsPerSecond      float64            `json:"records_per_second"`
	StageDurations        map[string]float64 `json:"stage_durations"`
}

// PipelineResult is the persisted outcome of a pipeline run.
type PipelineResult struct {
	RunID              string                 `json:"run_id"`
	Status             string                 `json:"status"`
	StartTime          time.Time              `json:"start_time"`
	EndTime            *time.Time             `json:"end_time"`
	DurationSeconds    float64                `json:"duration_seconds"`
	Stages             map[string]StageResult `json:"stages"`
	Errors             []string               `json:"errors"`
	DataQualityScores  QualityScores          `json:"data_quality_scores"`
	PerformanceMetrics *PerformanceMetrics    `json:"performance_metrics"`
}

// Succeeded reports whether the run completed.
func (r *PipelineResult) Succeeded() bool {
	return r != nil && r.Status == StatusCompleted
}
