package models

import "time"

// Experiment parameter keys. Parameters are numeric overrides applied to
// the treatment group; the control group always runs defaults.
const (
	ParamLearningRate = "learningRate"
	ParamAlpha        = "alpha"
)

// ExperimentConfig describes one controlled experiment. Created once,
// active until its end date passes or it is explicitly deactivated.
type ExperimentConfig struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	// Parameters are the treatment-group overrides.
	Parameters map[string]float64 `json:"parameters"`

	// Metrics is the accumulated analysis snapshot. Each recording call
	// overwrites the map wholesale; it is never merged.
	Metrics map[string]float64 `json:"metrics"`

	Active bool `json:"active"`
}

// ActiveAt reports whether the experiment is running at the given time.
func (e *ExperimentConfig) ActiveAt(now time.Time) bool {
	return e.Active && !now.Before(e.StartDate) && now.Before(e.EndDate)
}

// ExperimentGroup is a bucket assignment.
type ExperimentGroup string

const (
	GroupControl   ExperimentGroup = "control"
	GroupTreatment ExperimentGroup = "treatment"
)

// MetricComparison is the statistical comparison of one metric between
// the treatment and control groups.
type MetricComparison struct {
	Metric           string  `json:"metric"`
	ControlMean      float64 `json:"control_mean"`
	TreatmentMean    float64 `json:"treatment_mean"`
	ControlCount     int     `json:"control_count"`
	TreatmentCount   int     `json:"treatment_count"`
	ImprovementPct   float64 `json:"improvement_pct"`
	TStatistic       float64 `json:"t_statistic"`
	DegreesOfFreedom float64 `json:"degrees_of_freedom"`
	PValue           float64 `json:"p_value"`
	// EffectSize is Cohen's d on the pooled standard deviation.
	EffectSize float64 `json:"effect_size"`
	// CILower/CIUpper bound the mean difference at 95% using the fixed
	// z=1.96 normal approximation (a retained simplification; changing
	// it would change historical experiment conclusions).
	CILower     float64 `json:"ci_lower"`
	CIUpper     float64 `json:"ci_upper"`
	Significant bool    `json:"significant"`
}

// ExperimentAnalysis is the full analysis result for an experiment.
type ExperimentAnalysis struct {
	ExperimentID   string                      `json:"experiment_id"`
	Name           string                      `json:"name"`
	ControlUsers   int                         `json:"control_users"`
	TreatmentUsers int                         `json:"treatment_users"`
	Metrics        map[string]MetricComparison `json:"metrics"`
	AnalyzedAt     time.Time                   `json:"analyzed_at"`
}
