package models

import "time"

// PerformanceStats aggregates a user's PerformanceMetric rows over a window.
type PerformanceStats struct {
	UserID      string    `json:"user_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	SampleCount int `json:"sample_count"`

	// PredictionAccuracy is the fraction of rows where the graded
	// prediction matched the actual outcome.
	PredictionAccuracy float64 `json:"prediction_accuracy"`

	// MeanTimeEstimationError is the mean relative error over rows that
	// recorded both predicted and actual durations.
	MeanTimeEstimationError float64 `json:"mean_time_estimation_error"`
	TimeEstimationSamples   int     `json:"time_estimation_samples"`

	CategorySuccessRates  map[string]float64 `json:"category_success_rates"`
	CategoryMeanPredicted map[string]float64 `json:"category_mean_predicted"`
}

// CollaborativeRecommendation blends per-category signals from a user's
// most similar peers, weighted by similarity. Empty maps mean no
// similar users exist; that is not an error.
type CollaborativeRecommendation struct {
	// CategoryScores are similarity-weighted success rates per category.
	CategoryScores map[string]float64 `json:"category_scores"`
	// CategoryDurations are similarity-weighted completion times (minutes).
	CategoryDurations map[string]float64 `json:"category_durations"`
	// Contributors is how many similar users contributed.
	Contributors int `json:"contributors"`
}

// HourInsight pairs an hour of day with its learned multiplier.
type HourInsight struct {
	Hour       int     `json:"hour"`
	Multiplier float64 `json:"multiplier"`
}

// DayInsight pairs a weekday (1=Sunday) with its learned multiplier.
type DayInsight struct {
	Day        int     `json:"day"`
	Multiplier float64 `json:"multiplier"`
}

// CategoryInsight pairs a category with its learned signals.
type CategoryInsight struct {
	Category    string  `json:"category"`
	Multiplier  float64 `json:"multiplier"`
	SuccessRate float64 `json:"success_rate"`
}

// InsightsReport is the typed learning summary returned to callers.
type InsightsReport struct {
	UserID      string    `json:"user_id"`
	GeneratedAt time.Time `json:"generated_at"`

	BestHours      []HourInsight     `json:"best_hours"`
	BestDays       []DayInsight      `json:"best_days"`
	TopCategories  []CategoryInsight `json:"top_categories"`
	WeakCategories []CategoryInsight `json:"weak_categories"`

	Recommendations CollaborativeRecommendation `json:"recommendations"`
	SampleCount     int                         `json:"sample_count"`
}
