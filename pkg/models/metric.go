package models

import "time"

// PerformanceMetric is an immutable record of one completion/failure
// event and the model's prediction at that moment. Predictions are
// captured before the event's own learning update so that accuracy
// metrics are never contaminated by hindsight. Append-only.
type PerformanceMetric struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	TaskID string `json:"task_id"`

	// PredictedScore is the model's pre-update success prediction in [0,1].
	PredictedScore float64 `json:"predicted_score"`
	// ActualSuccess is the observed outcome.
	ActualSuccess bool `json:"actual_success"`

	// PredictedDuration and ActualDuration are in minutes; nil when the
	// task carries no creation timestamp or no estimate existed.
	PredictedDuration *float64 `json:"predicted_duration,omitempty"`
	ActualDuration    *float64 `json:"actual_duration,omitempty"`

	Category  string    `json:"category,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AccuracyThreshold is the prediction cut-off used when grading a
// prediction against the observed outcome: a prediction >= 0.7 counts
// as "predicted success".
const AccuracyThreshold = 0.7

// PredictionCorrect reports whether the recorded prediction agreed with
// the observed outcome.
func (m *PerformanceMetric) PredictionCorrect() bool {
	return (m.PredictedScore >= AccuracyThreshold) == m.ActualSuccess
}

// RelativeTimeError returns |predicted-actual|/actual and whether both
// durations were recorded.
func (m *PerformanceMetric) RelativeTimeError() (float64, bool) {
	if m.PredictedDuration == nil || m.ActualDuration == nil || *m.ActualDuration <= 0 {
		return 0, false
	}
	diff := *m.PredictedDuration - *m.ActualDuration
	if diff < 0 {
		diff = -diff
	}
	return diff / *m.ActualDuration, true
}

// UserSimilarity is one directional similarity row: UserID is the
// subject whose recomputation produced the row.
type UserSimilarity struct {
	UserID      string    `json:"user_id"`
	OtherUserID string    `json:"other_user_id"`
	Score       float64   `json:"score"` // in [-1, 1]
	UpdatedAt   time.Time `json:"updated_at"`
}

// AnomalyType classifies a detected anomaly.
type AnomalyType string

const (
	// AnomalyMetricDeviation flags a metric value far outside the user's
	// own history (z-score threshold exceeded).
	AnomalyMetricDeviation AnomalyType = "metric_deviation"
)

// Metric names used by anomaly detection and experiment analysis.
const (
	MetricTimeEstimationError = "timeEstimationError"
	MetricPredictionAccuracy  = "predictionAccuracy"
	MetricCategorySuccessRate = "categorySuccessRate"
)

// AnomalyRecord is an immutable audit entry for a detected anomaly.
type AnomalyRecord struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Timestamp   time.Time   `json:"timestamp"`
	Type        AnomalyType `json:"type"`
	Metric      string      `json:"metric"`
	Expected    float64     `json:"expected"`
	Actual      float64     `json:"actual"`
	ZScore      float64     `json:"z_score"`
	Description string      `json:"description"`
}
