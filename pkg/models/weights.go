package models

import "time"

// Multiplier and rate bounds for learned weights. Every multiplier is
// clamped to [MinMultiplier, MaxMultiplier] and every success rate to
// [0, 1] after each update; these invariants hold for any persisted
// UserWeights regardless of the sequence of updates that produced it.
const (
	MinMultiplier = 0.1
	MaxMultiplier = 2.0

	// DefaultAlpha is the default EMA smoothing factor.
	DefaultAlpha = 0.2

	// DefaultSuccessRate is the neutral rate assumed before any observation.
	DefaultSuccessRate = 0.5

	// NeutralMultiplier is the starting value for all learned multipliers.
	NeutralMultiplier = 1.0
)

// UserWeights is the per-user learned weight vector. It is owned
// exclusively by the weight store; all other components read it.
//
// Hour keys are 0-23. Day keys are 1-7 with Sunday=1, matching the
// calendar convention the mobile clients use. Category keys are the
// free-form task categories.
type UserWeights struct {
	UserID string `json:"user_id"`

	// HourlyWeights multiplies priority for tasks scored at a given hour.
	HourlyWeights map[int]float64 `json:"hourly_weights"`
	// DailyWeights multiplies priority for tasks scored on a given weekday.
	DailyWeights map[int]float64 `json:"daily_weights"`
	// CategoryWeights multiplies priority per task category.
	CategoryWeights map[string]float64 `json:"category_weights"`

	// TaskSuccessRates is the EMA of completion success per task.
	TaskSuccessRates map[string]float64 `json:"task_success_rates"`
	// CategorySuccessRates is the EMA of completion success per category.
	CategorySuccessRates map[string]float64 `json:"category_success_rates"`
	// CategoryAvgDuration is the EMA of completion time per category, in minutes.
	CategoryAvgDuration map[string]float64 `json:"category_avg_duration"`

	// Alpha is the EMA smoothing factor applied to rate and duration fields.
	Alpha float64 `json:"alpha"`

	LastUpdated time.Time `json:"last_updated"`
}

// DefaultUserWeights returns a fresh, all-neutral weight vector.
// Hour and day maps are fully populated so that scoring never has to
// distinguish "missing" from "neutral".
func DefaultUserWeights(userID string) *UserWeights {
	hourly := make(map[int]float64, 24)
	for h := 0; h < 24; h++ {
		hourly[h] = NeutralMultiplier
	}
	daily := make(map[int]float64, 7)
	for d := 1; d <= 7; d++ {
		daily[d] = NeutralMultiplier
	}
	return &UserWeights{
		UserID:               userID,
		HourlyWeights:        hourly,
		DailyWeights:         daily,
		CategoryWeights:      make(map[string]float64),
		TaskSuccessRates:     make(map[string]float64),
		CategorySuccessRates: make(map[string]float64),
		CategoryAvgDuration:  make(map[string]float64),
		Alpha:                DefaultAlpha,
	}
}

// ClampMultiplier bounds a learned multiplier to [MinMultiplier, MaxMultiplier].
func ClampMultiplier(v float64) float64 {
	if v < MinMultiplier {
		return MinMultiplier
	}
	if v > MaxMultiplier {
		return MaxMultiplier
	}
	return v
}

// ClampRate bounds a success rate to [0, 1].
func ClampRate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EMA computes one exponential-moving-average step:
//
//	new = alpha*observed + (1-alpha)*current
func EMA(current, observed, alpha float64) float64 {
	return alpha*observed + (1-alpha)*current
}

// HourMultiplier returns the learned multiplier for an hour, neutral if unset.
func (w *UserWeights) HourMultiplier(hour int) float64 {
	if v, ok := w.HourlyWeights[hour]; ok {
		return v
	}
	return NeutralMultiplier
}

// DayMultiplier returns the learned multiplier for a weekday (1=Sunday),
// neutral if unset.
func (w *UserWeights) DayMultiplier(day int) float64 {
	if v, ok := w.DailyWeights[day]; ok {
		return v
	}
	return NeutralMultiplier
}

// CategoryMultiplier returns the learned multiplier for a category,
// neutral if unset or the category is empty.
func (w *UserWeights) CategoryMultiplier(category string) float64 {
	if category == "" {
		return NeutralMultiplier
	}
	if v, ok := w.CategoryWeights[category]; ok {
		return v
	}
	return NeutralMultiplier
}

// NudgeHour moves the hourly multiplier by step (positive reinforcement,
// negative punishment). Multiplier updates move by a fixed learning-rate
// step rather than an EMA: they are additive reinforcement, not a running
// average of observations. Keep that asymmetry.
func (w *UserWeights) NudgeHour(hour int, step float64) {
	w.HourlyWeights[hour] = ClampMultiplier(w.HourMultiplier(hour) + step)
}

// NudgeDay moves the daily multiplier by step (1=Sunday).
func (w *UserWeights) NudgeDay(day int, step float64) {
	w.DailyWeights[day] = ClampMultiplier(w.DayMultiplier(day) + step)
}

// NudgeCategory moves the category multiplier by step. No-op for an
// empty category.
func (w *UserWeights) NudgeCategory(category string, step float64) {
	if category == "" {
		return
	}
	w.CategoryWeights[category] = ClampMultiplier(w.CategoryMultiplier(category) + step)
}

// TaskSuccessRate returns the learned success rate for a task,
// DefaultSuccessRate if never observed.
func (w *UserWeights) TaskSuccessRate(taskID string) float64 {
	if v, ok := w.TaskSuccessRates[taskID]; ok {
		return v
	}
	return DefaultSuccessRate
}

// CategorySuccessRate returns the learned success rate for a category,
// DefaultSuccessRate if never observed.
func (w *UserWeights) CategorySuccessRate(category string) float64 {
	if v, ok := w.CategorySuccessRates[category]; ok {
		return v
	}
	return DefaultSuccessRate
}

// ObserveTaskOutcome folds one success/failure observation into the
// task's success-rate EMA (success=1.0, failure=0.0).
func (w *UserWeights) ObserveTaskOutcome(taskID string, success bool) {
	observed := 0.0
	if success {
		observed = 1.0
	}
	w.TaskSuccessRates[taskID] = ClampRate(EMA(w.TaskSuccessRate(taskID), observed, w.alpha()))
}

// ObserveCategoryOutcome folds one success/failure observation into the
// category's success-rate EMA. No-op for an empty category.
func (w *UserWeights) ObserveCategoryOutcome(category string, success bool) {
	if category == "" {
		return
	}
	observed := 0.0
	if success {
		observed = 1.0
	}
	w.CategorySuccessRates[category] = ClampRate(EMA(w.CategorySuccessRate(category), observed, w.alpha()))
}

// ObserveCategoryDuration folds one observed completion duration (minutes)
// into the category's time-to-complete EMA. Duration values are not
// clamped; only rates and multipliers have bounded ranges.
func (w *UserWeights) ObserveCategoryDuration(category string, minutes float64) {
	if category == "" || minutes <= 0 {
		return
	}
	current, ok := w.CategoryAvgDuration[category]
	if !ok {
		// First observation seeds the average directly.
		w.CategoryAvgDuration[category] = minutes
		return
	}
	w.CategoryAvgDuration[category] = EMA(current, minutes, w.alpha())
}

func (w *UserWeights) alpha() float64 {
	if w.Alpha <= 0 || w.Alpha > 1 {
		return DefaultAlpha
	}
	return w.Alpha
}

// EnsureMaps initializes any nil maps. Called after deserialization so
// callers never write into a nil map.
func (w *UserWeights) EnsureMaps() {
	if w.HourlyWeights == nil {
		w.HourlyWeights = make(map[int]float64)
	}
	if w.DailyWeights == nil {
		w.DailyWeights = make(map[int]float64)
	}
	if w.CategoryWeights == nil {
		w.CategoryWeights = make(map[string]float64)
	}
	if w.TaskSuccessRates == nil {
		w.TaskSuccessRates = make(map[string]float64)
	}
	if w.CategorySuccessRates == nil {
		w.CategorySuccessRates = make(map[string]float64)
	}
	if w.CategoryAvgDuration == nil {
		w.CategoryAvgDuration = make(map[string]float64)
	}
}

// Clone returns a deep copy. The weight manager hands mutation closures a
// private copy so a failed persist never leaks partial state into the cache.
func (w *UserWeights) Clone() *UserWeights {
	c := &UserWeights{
		UserID:               w.UserID,
		HourlyWeights:        make(map[int]float64, len(w.HourlyWeights)),
		DailyWeights:         make(map[int]float64, len(w.DailyWeights)),
		CategoryWeights:      make(map[string]float64, len(w.CategoryWeights)),
		TaskSuccessRates:     make(map[string]float64, len(w.TaskSuccessRates)),
		CategorySuccessRates: make(map[string]float64, len(w.CategorySuccessRates)),
		CategoryAvgDuration:  make(map[string]float64, len(w.CategoryAvgDuration)),
		Alpha:                w.Alpha,
		LastUpdated:          w.LastUpdated,
	}
	for k, v := range w.HourlyWeights {
		c.HourlyWeights[k] = v
	}
	for k, v := range w.DailyWeights {
		c.DailyWeights[k] = v
	}
	for k, v := range w.CategoryWeights {
		c.CategoryWeights[k] = v
	}
	for k, v := range w.TaskSuccessRates {
		c.TaskSuccessRates[k] = v
	}
	for k, v := range w.CategorySuccessRates {
		c.CategorySuccessRates[k] = v
	}
	for k, v := range w.CategoryAvgDuration {
		c.CategoryAvgDuration[k] = v
	}
	return c
}
