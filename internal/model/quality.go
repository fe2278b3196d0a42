package model

// Quality dimension names.
const (
	DimensionCompleteness  = "completeness"
	DimensionAccuracy      = "accuracy"
	DimensionConsistency   = "consistency"
	DimensionTimeliness    = "timeliness"
	DimensionBusinessRules = "business_rules"
)

// DimensionResult is the score of a single quality dimension.
type DimensionResult struct {
	Score     float64                `json:"score"`
	Threshold float64                `json:"threshold"`
	Passed    bool                   `json:"passed"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// QualityReport holds the five dimension scores. OverallScore is the plain
// mean of completeness, accuracy, consistency and timeliness; business rules
// are scored and gated separately.
type QualityReport struct {
	Completeness  DimensionResult `json:"completeness"`
	Accuracy      DimensionResult `json:"accuracy"`
	Consistency   DimensionResult `json:"consistency"`
	Timeliness    DimensionResult `json:"timeliness"`
	BusinessRules DimensionResult `json:"business_rules"`
	OverallScore  float64         `json:"overall_score"`
}

// Dimensions returns the dimensions keyed by name.
func (q QualityReport) Dimensions() map[string]DimensionResult {
	return map[string]DimensionResult{
		DimensionCompleteness:  q.Completeness,
		DimensionAccuracy:      q.Accuracy,
		DimensionConsistency:   q.Consistency,
		DimensionTimeliness:    q.Timeliness,
		DimensionBusinessRules: q.BusinessRules,
	}
}

// AllPassed reports whether every dimension met its threshold.
func (q QualityReport) AllPassed() bool {
	for _, d := range q.Dimensions() {
		if !d.Passed {
			return false
		}
	}
	return true
}

// PassedCount returns how many dimensions met their threshold.
func (q QualityReport) PassedCount() int {
	n := 0
	for _, d := range q.Dimensions() {
		if d.Passed {
			n++
		}
	}
	return n
}

// Scores returns the summary persisted in the pipeline result.
func (q QualityReport) Scores() QualityScores {
	return QualityScores{
		ScoreOverall:          q.OverallScore,
		DimensionCompleteness: q.Completeness.Score,
		DimensionAccuracy:     q.Accuracy.Score,
		DimensionConsistency:  q.Consistency.Score,
		DimensionTimeliness:   q.Timeliness.Score,
	}
}
