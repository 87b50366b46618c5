// Package learning implements the feedback loop: task outcomes update
// the user's learned weights, metrics are recorded for analysis, and
// the learned state feeds back into priority scoring.
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fluxtask/fluxtask/internal/analytics"
	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/internal/experiment"
	"github.com/fluxtask/fluxtask/internal/scoring"
	"github.com/fluxtask/fluxtask/internal/weights"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// DefaultLearningRate is the fixed step applied to hour/day/category
// multipliers per outcome, unless an experiment overrides it.
const DefaultLearningRate = 0.1

// triggerTimeout bounds the post-event maintenance work spawned after a
// recorded outcome.
const triggerTimeout = 30 * time.Second

// Engine coordinates outcome recording, multiplier resolution, and
// insight generation for one deployment.
type Engine struct {
	weights     *weights.Manager
	metrics     db.MetricStore
	analytics   *analytics.Service
	experiments *experiment.Engine
	detector    *experiment.Detector
	calculator  *scoring.Calculator

	tasks  db.TaskRepository
	habits db.HabitRepository

	// rateMu guards learningRate, which is hot-reloadable via
	// SetLearningRate while outcomes are being recorded.
	rateMu       sync.RWMutex
	learningRate float64

	completions metric.Int64Counter
	failures    metric.Int64Counter

	// wg tracks in-flight post-event triggers so shutdown can drain them.
	wg sync.WaitGroup
}

// NewEngine wires a learning engine. learningRate <= 0 selects the default.
func NewEngine(
	wm *weights.Manager,
	metrics db.MetricStore,
	as *analytics.Service,
	ee *experiment.Engine,
	detector *experiment.Detector,
	calculator *scoring.Calculator,
	tasks db.TaskRepository,
	habits db.HabitRepository,
	learningRate float64,
) *Engine {
	if learningRate <= 0 {
		learningRate = DefaultLearningRate
	}
	meter := otel.Meter("fluxtask.learning")
	completions, _ := meter.Int64Counter("fluxtask.outcomes.completions",
		metric.WithDescription("Task completions recorded"))
	failures, _ := meter.Int64Counter("fluxtask.outcomes.failures",
		metric.WithDescription("Task failures recorded"))
	return &Engine{
		weights:      wm,
		metrics:      metrics,
		analytics:    as,
		experiments:  ee,
		detector:     detector,
		calculator:   calculator,
		tasks:        tasks,
		habits:       habits,
		learningRate: learningRate,
		completions:  completions,
		failures:     failures,
	}
}

// RecordCompletion folds one successful completion into the user's
// learned weights and appends the performance metric. The metric
// captures the model's prediction as it stood before this event's own
// update. Weight and metric persistence failures abort and surface;
// the similarity recompute and anomaly scan triggered afterwards are
// best effort and only logged.
func (e *Engine) RecordCompletion(ctx context.Context, task *models.Task, completedAt time.Time) error {
	if task == nil {
		return fmt.Errorf("record completion: nil task")
	}

	before, err := e.weights.Get(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}

	m := e.buildMetric(before, task, true, completedAt, &completedAt)

	step, alphaOverride, err := e.effectiveParameters(ctx, task.UserID, completedAt)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}

	_, err = e.weights.Update(ctx, task.UserID, func(w *models.UserWeights) {
		// Experiment alpha applies to this event only, not persisted.
		if alphaOverride > 0 {
			saved := w.Alpha
			w.Alpha = alphaOverride
			defer func() { w.Alpha = saved }()
		}
		w.NudgeHour(completedAt.Hour(), step)
		w.NudgeDay(weekday(completedAt), step)
		w.NudgeCategory(task.Category, step)
		w.ObserveTaskOutcome(task.ID, true)
		w.ObserveCategoryOutcome(task.Category, true)
		if m.ActualDuration != nil {
			w.ObserveCategoryDuration(task.Category, *m.ActualDuration)
		}
	})
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}

	if err := e.metrics.AppendMetric(ctx, m); err != nil {
		return fmt.Errorf("record completion metric: %w", err)
	}

	e.completions.Add(ctx, 1)
	log.Info().Str("user", task.UserID).Str("task", task.ID).
		Int("hour", completedAt.Hour()).Msg("Completion recorded")

	e.fireTriggers(task.UserID)
	return nil
}

// RecordFailure folds one failed or abandoned task into the user's
// learned weights. The punishment step mirrors the reinforcement step;
// no duration is observed because the task never finished.
func (e *Engine) RecordFailure(ctx context.Context, task *models.Task) error {
	if task == nil {
		return fmt.Errorf("record failure: nil task")
	}
	now := time.Now().UTC()

	before, err := e.weights.Get(ctx, task.UserID)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	m := e.buildMetric(before, task, false, now, nil)

	step, alphaOverride, err := e.effectiveParameters(ctx, task.UserID, now)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	_, err = e.weights.Update(ctx, task.UserID, func(w *models.UserWeights) {
		if alphaOverride > 0 {
			saved := w.Alpha
			w.Alpha = alphaOverride
			defer func() { w.Alpha = saved }()
		}
		w.NudgeHour(now.Hour(), -step)
		w.NudgeDay(weekday(now), -step)
		w.NudgeCategory(task.Category, -step)
		w.ObserveTaskOutcome(task.ID, false)
		w.ObserveCategoryOutcome(task.Category, false)
	})
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	if err := e.metrics.AppendMetric(ctx, m); err != nil {
		return fmt.Errorf("record failure metric: %w", err)
	}

	e.failures.Add(ctx, 1)
	log.Info().Str("user", task.UserID).Str("task", task.ID).Msg("Failure recorded")

	e.fireTriggers(task.UserID)
	return nil
}

// GetScoreMultiplier resolves the learned priority multiplier for a
// task at the given time. It never returns an error: any lookup
// failure degrades to the neutral multiplier so scoring always
// proceeds.
func (e *Engine) GetScoreMultiplier(ctx context.Context, task *models.Task, now time.Time) float64 {
	w, err := e.weights.Get(ctx, task.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user", task.UserID).
			Msg("Weight lookup failed, using neutral multiplier")
		return models.NeutralMultiplier
	}

	mult := w.HourMultiplier(now.Hour()) *
		w.DayMultiplier(weekday(now)) *
		w.CategoryMultiplier(task.Category)

	// Predicted success shifts the multiplier into [0.5x, 1.5x].
	mult *= 0.5 + predictSuccess(w, task)

	rec, err := e.analytics.CollaborativeRecommendations(ctx, task.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user", task.UserID).
			Msg("Collaborative lookup failed, skipping blend")
		return mult
	}
	if score, ok := rec.CategoryScores[task.Category]; ok {
		mult *= 0.7 + 0.3*score
	}
	return mult
}

// PrioritizeTasks scores the user's incomplete tasks with learned
// multipliers applied and returns them highest priority first.
func (e *Engine) PrioritizeTasks(ctx context.Context, userID string, now time.Time) ([]models.TaskPriorityScore, error) {
	tasks, err := e.tasks.IncompleteTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	habits, err := e.habits.HabitsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load habits: %w", err)
	}
	return e.calculator.Prioritize(tasks, habits, now, func(task *models.Task) float64 {
		return e.GetScoreMultiplier(ctx, task, now)
	}), nil
}

// SetLearningRate replaces the default multiplier step for subsequent
// outcomes. Out-of-range values are ignored; active experiment
// overrides still take precedence per event.
func (e *Engine) SetLearningRate(rate float64) {
	if rate <= 0 || rate >= 1 {
		log.Warn().Float64("rate", rate).Msg("Ignoring invalid learning rate")
		return
	}
	e.rateMu.Lock()
	e.learningRate = rate
	e.rateMu.Unlock()
	log.Info().Float64("rate", rate).Msg("Learning rate updated")
}

// LearningRate returns the step currently applied absent experiment
// overrides.
func (e *Engine) LearningRate() float64 {
	e.rateMu.RLock()
	defer e.rateMu.RUnlock()
	return e.learningRate
}

// Wait blocks until all in-flight post-event triggers finish. Called
// during graceful shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// buildMetric snapshots the model's pre-update prediction for this
// event, stamped with the event time. completedAt nil means a failure
// with no measured duration.
func (e *Engine) buildMetric(before *models.UserWeights, task *models.Task, success bool, eventTime time.Time, completedAt *time.Time) *models.PerformanceMetric {
	m := &models.PerformanceMetric{
		ID:             uuid.NewString(),
		UserID:         task.UserID,
		TaskID:         task.ID,
		PredictedScore: predictSuccess(before, task),
		ActualSuccess:  success,
		Category:       task.Category,
		Timestamp:      eventTime.UTC(),
	}
	if predicted, ok := before.CategoryAvgDuration[task.Category]; ok {
		m.PredictedDuration = &predicted
	}
	if completedAt != nil && task.CreatedAt != nil && completedAt.After(*task.CreatedAt) {
		actual := completedAt.Sub(*task.CreatedAt).Minutes()
		m.ActualDuration = &actual
	}
	return m
}

// effectiveParameters resolves the learning step and alpha in effect
// for a user, applying any active experiment's treatment overrides.
func (e *Engine) effectiveParameters(ctx context.Context, userID string, now time.Time) (step, alpha float64, err error) {
	step = e.LearningRate()
	if e.experiments == nil {
		return step, 0, nil
	}
	params, err := e.experiments.ParametersFor(ctx, userID, now)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve experiment parameters: %w", err)
	}
	if v, ok := params[models.ParamLearningRate]; ok && v > 0 {
		step = v
	}
	if v, ok := params[models.ParamAlpha]; ok && v > 0 && v <= 1 {
		alpha = v
	}
	return step, alpha, nil
}

// fireTriggers kicks off the similarity recompute and anomaly scan in
// the background. The recorded outcome is already durable; trigger
// failures are logged and never rolled back into the caller.
func (e *Engine) fireTriggers(userID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()

		if err := e.analytics.UpdateSimilarities(ctx, userID); err != nil {
			log.Error().Err(err).Str("user", userID).Msg("Similarity recompute failed")
		}
		if e.detector != nil {
			if _, err := e.detector.DetectAnomalies(ctx, userID); err != nil {
				log.Error().Err(err).Str("user", userID).Msg("Anomaly scan failed")
			}
		}
	}()
}

// predictSuccess returns the model's success prediction for a task:
// the task-level EMA when the task has history, otherwise the category
// EMA, otherwise the neutral default.
func predictSuccess(w *models.UserWeights, task *models.Task) float64 {
	if v, ok := w.TaskSuccessRates[task.ID]; ok {
		return v
	}
	if v, ok := w.CategorySuccessRates[task.Category]; ok && task.Category != "" {
		return v
	}
	return models.DefaultSuccessRate
}

// weekday maps a time to the 1-7 Sunday-first convention used by the
// weight vectors.
func weekday(t time.Time) int {
	return int(t.Weekday()) + 1
}
