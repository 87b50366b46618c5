package experiment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// Engine manages controlled experiments: creation, deterministic user
// bucketing, treatment parameter resolution, and statistical analysis.
type Engine struct {
	experiments db.ExperimentStore
	metrics     db.MetricStore
}

// NewEngine creates an experiment engine over the given stores.
func NewEngine(experiments db.ExperimentStore, metrics db.MetricStore) *Engine {
	return &Engine{experiments: experiments, metrics: metrics}
}

// CreateExperiment registers a new experiment starting now and running
// for durationDays. Parameters are the treatment-group overrides.
func (e *Engine) CreateExperiment(ctx context.Context, name string, parameters map[string]float64, durationDays int) (*models.ExperimentConfig, error) {
	if name == "" {
		return nil, fmt.Errorf("experiment name required")
	}
	if durationDays <= 0 {
		return nil, fmt.Errorf("experiment duration must be positive, got %d", durationDays)
	}

	now := time.Now().UTC()
	params := make(map[string]float64, len(parameters))
	for k, v := range parameters {
		params[k] = v
	}
	exp := &models.ExperimentConfig{
		ID:         uuid.NewString(),
		Name:       name,
		StartDate:  now,
		EndDate:    now.AddDate(0, 0, durationDays),
		Parameters: params,
		Metrics:    map[string]float64{},
		Active:     true,
	}
	if err := e.experiments.CreateExperiment(ctx, exp); err != nil {
		return nil, fmt.Errorf("create experiment: %w", err)
	}
	log.Info().Str("experiment", exp.ID).Str("name", name).
		Int("duration_days", durationDays).Msg("Experiment created")
	return exp, nil
}

// ActiveExperiment returns the experiment currently in effect, oldest
// first when several overlap. Returns db.ErrNotFound when none is
// running.
func (e *Engine) ActiveExperiment(ctx context.Context, now time.Time) (*models.ExperimentConfig, error) {
	active, err := e.experiments.ActiveExperiments(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list active experiments: %w", err)
	}
	if len(active) == 0 {
		return nil, db.ErrNotFound
	}
	return active[0], nil
}

// ParametersFor resolves the parameter overrides in effect for a user.
// The oldest active experiment wins; its treatment group receives the
// experiment's parameters and its control group (like users outside any
// experiment) receives none.
func (e *Engine) ParametersFor(ctx context.Context, userID string, now time.Time) (map[string]float64, error) {
	exp, err := e.ActiveExperiment(ctx, now)
	if errors.Is(err, db.ErrNotFound) {
		return map[string]float64{}, nil
	}
	if err != nil {
		return nil, err
	}
	if AssignGroup(userID) != models.GroupTreatment {
		return map[string]float64{}, nil
	}
	params := make(map[string]float64, len(exp.Parameters))
	for k, v := range exp.Parameters {
		params[k] = v
	}
	return params, nil
}

// Deactivate stops an experiment before its end date. Already-inactive
// experiments deactivate idempotently.
func (e *Engine) Deactivate(ctx context.Context, id string) error {
	exp, err := e.experiments.GetExperiment(ctx, id)
	if err != nil {
		return err
	}
	if !exp.Active {
		return nil
	}
	exp.Active = false
	if err := e.experiments.UpdateExperiment(ctx, exp); err != nil {
		return fmt.Errorf("deactivate experiment: %w", err)
	}
	log.Info().Str("experiment", id).Msg("Experiment deactivated")
	return nil
}

// List returns all experiments.
func (e *Engine) List(ctx context.Context) ([]*models.ExperimentConfig, error) {
	return e.experiments.ListExperiments(ctx)
}

// Get returns one experiment, or db.ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (*models.ExperimentConfig, error) {
	return e.experiments.GetExperiment(ctx, id)
}

// Analyze compares treatment against control over the experiment's
// window using Welch's t-test per metric, persists a flattened snapshot
// onto the experiment record, and returns the full analysis. An unknown
// experiment id surfaces db.ErrNotFound.
func (e *Engine) Analyze(ctx context.Context, experimentID string) (*models.ExperimentAnalysis, error) {
	exp, err := e.experiments.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	rows, err := e.metrics.AllMetricsInWindow(ctx, exp.StartDate, exp.EndDate)
	if err != nil {
		return nil, fmt.Errorf("load experiment metrics: %w", err)
	}

	control, treatment := partitionByGroup(rows)

	analysis := &models.ExperimentAnalysis{
		ExperimentID:   exp.ID,
		Name:           exp.Name,
		ControlUsers:   distinctUsers(control),
		TreatmentUsers: distinctUsers(treatment),
		Metrics:        make(map[string]models.MetricComparison),
		AnalyzedAt:     time.Now().UTC(),
	}

	for _, metric := range []string{models.MetricPredictionAccuracy, models.MetricTimeEstimationError, models.MetricCategorySuccessRate} {
		controlVals := metricSeries(control, metric)
		treatmentVals := metricSeries(treatment, metric)
		cmp, ok := compareMetric(metric, controlVals, treatmentVals)
		if !ok {
			continue
		}
		analysis.Metrics[metric] = cmp
	}

	exp.Metrics = flattenAnalysis(analysis)
	if err := e.experiments.UpdateExperiment(ctx, exp); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}
	return analysis, nil
}

func partitionByGroup(rows []*models.PerformanceMetric) (control, treatment []*models.PerformanceMetric) {
	for _, m := range rows {
		if AssignGroup(m.UserID) == models.GroupTreatment {
			treatment = append(treatment, m)
		} else {
			control = append(control, m)
		}
	}
	return control, treatment
}

func distinctUsers(rows []*models.PerformanceMetric) int {
	seen := make(map[string]struct{})
	for _, m := range rows {
		seen[m.UserID] = struct{}{}
	}
	return len(seen)
}

// metricSeries extracts per-event observations of the named metric from
// raw metric rows.
func metricSeries(rows []*models.PerformanceMetric, metric string) []float64 {
	var vals []float64
	for _, m := range rows {
		switch metric {
		case models.MetricPredictionAccuracy:
			if m.PredictionCorrect() {
				vals = append(vals, 1)
			} else {
				vals = append(vals, 0)
			}
		case models.MetricTimeEstimationError:
			if relErr, ok := m.RelativeTimeError(); ok {
				vals = append(vals, relErr)
			}
		case models.MetricCategorySuccessRate:
			if m.Category != "" {
				if m.ActualSuccess {
					vals = append(vals, 1)
				} else {
					vals = append(vals, 0)
				}
			}
		}
	}
	return vals
}

func compareMetric(metric string, control, treatment []float64) (models.MetricComparison, bool) {
	result, ok := WelchTTest(control, treatment)
	if !ok {
		return models.MetricComparison{}, false
	}

	improvement := 0.0
	if result.ControlMean != 0 {
		improvement = (result.TreatmentMean - result.ControlMean) / result.ControlMean * 100
	}

	return models.MetricComparison{
		Metric:           metric,
		ControlMean:      result.ControlMean,
		TreatmentMean:    result.TreatmentMean,
		ControlCount:     len(control),
		TreatmentCount:   len(treatment),
		ImprovementPct:   improvement,
		TStatistic:       result.T,
		DegreesOfFreedom: result.DF,
		PValue:           result.P,
		EffectSize:       result.EffectSize,
		CILower:          result.CILower,
		CIUpper:          result.CIUpper,
		Significant:      result.Significant(),
	}, true
}

// flattenAnalysis reduces an analysis to the flat key/value snapshot
// stored on the experiment row. The snapshot replaces any prior one.
func flattenAnalysis(a *models.ExperimentAnalysis) map[string]float64 {
	flat := map[string]float64{
		"controlUsers":   float64(a.ControlUsers),
		"treatmentUsers": float64(a.TreatmentUsers),
	}
	names := make([]string, 0, len(a.Metrics))
	for name := range a.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmp := a.Metrics[name]
		flat[name+".controlMean"] = cmp.ControlMean
		flat[name+".treatmentMean"] = cmp.TreatmentMean
		flat[name+".improvementPct"] = cmp.ImprovementPct
		flat[name+".pValue"] = cmp.PValue
		flat[name+".effectSize"] = cmp.EffectSize
		if cmp.Significant {
			flat[name+".significant"] = 1
		} else {
			flat[name+".significant"] = 0
		}
	}
	return flat
}
