// Package scoring computes priority scores for tasks.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// Config contains the factor blend weights.
type Config struct {
	// DueDateWeight scales the due-date proximity factor.
	DueDateWeight float64 `json:"due_date_weight" yaml:"due_date_weight"`
	// HabitWeight scales the habit-alignment factor.
	HabitWeight float64 `json:"habit_weight" yaml:"habit_weight"`
	// TimeOfDayWeight scales the productivity-hour factor.
	TimeOfDayWeight float64 `json:"time_of_day_weight" yaml:"time_of_day_weight"`
	// ComplexityWeight scales the task-complexity factor.
	ComplexityWeight float64 `json:"complexity_weight" yaml:"complexity_weight"`
}

// DefaultConfig returns the default factor blend.
func DefaultConfig() Config {
	return Config{
		DueDateWeight:    0.4,
		HabitWeight:      0.3,
		TimeOfDayWeight:  0.2,
		ComplexityWeight: 0.1,
	}
}

// hourProductivity is the static time-of-day policy table. It encodes
// assumed productivity peaks (a morning and an afternoon peak window
// with shoulders); it is a policy constant, not a learned value — the
// learned per-user hour preference enters through the ML multiplier.
var hourProductivity = map[int]float64{
	8:  0.8,
	9:  1.0,
	10: 1.0,
	11: 1.0,
	12: 0.8,
	13: 0.8,
	14: 0.9,
	15: 0.9,
	16: 0.9,
	17: 0.7,
	18: 0.6,
	19: 0.6,
	20: 0.6,
	21: 0.6,
}

// offPeakHourFactor is the table value for hours not listed above.
const offPeakHourFactor = 0.3

// isPeakHour reports whether the hour falls in one of the two peak
// windows (9-11 and 14-16).
func isPeakHour(hour int) bool {
	return (hour >= 9 && hour <= 11) || (hour >= 14 && hour <= 16)
}

// Calculator computes priority scores for tasks.
type Calculator struct {
	config Config
}

// NewCalculator creates a new priority calculator. A zero config falls
// back to the defaults.
func NewCalculator(config Config) *Calculator {
	if config == (Config{}) {
		config = DefaultConfig()
	}
	return &Calculator{config: config}
}

// Score computes the priority score for one task.
//
// The scoring formula:
//
//	base  = 0.4·dueDate + 0.3·habitAlignment + 0.2·timeOfDay + 0.1·complexity
//	final = base × mlMultiplier
//
// Each factor is normalized to [0,1]; mlMultiplier is the learned
// adjustment supplied by the learning engine (1.0 when neutral). Pure
// given its inputs; no side effects.
func (c *Calculator) Score(task *models.Task, habits []*models.Habit, now time.Time, mlMultiplier float64) models.TaskPriorityScore {
	if mlMultiplier <= 0 {
		mlMultiplier = 1.0
	}

	factors := models.PriorityFactors{
		DueDate:        dueDateFactor(task.DueDate, now),
		HabitAlignment: habitAlignmentFactor(task.Category, habits),
		TimeOfDay:      timeOfDayFactor(now.Hour()),
		Complexity:     complexityFactor(task, now.Hour()),
		MLAdjustment:   mlMultiplier,
	}

	base := c.config.DueDateWeight*factors.DueDate +
		c.config.HabitWeight*factors.HabitAlignment +
		c.config.TimeOfDayWeight*factors.TimeOfDay +
		c.config.ComplexityWeight*factors.Complexity

	return models.TaskPriorityScore{
		TaskID:  task.ID,
		Score:   base * mlMultiplier,
		Factors: factors,
	}
}

// MultiplierFunc resolves the learned multiplier for a task.
type MultiplierFunc func(task *models.Task) float64

// Prioritize scores every task and returns the list ordered by score
// descending. Ties keep the input order so output is deterministic.
func (c *Calculator) Prioritize(tasks []*models.Task, habits []*models.Habit, now time.Time, multiplier MultiplierFunc) []models.TaskPriorityScore {
	scores := make([]models.TaskPriorityScore, 0, len(tasks))
	for _, task := range tasks {
		mult := 1.0
		if multiplier != nil {
			mult = multiplier(task)
		}
		scores = append(scores, c.Score(task, habits, now, mult))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}

// dueDateFactor maps due-date proximity to [0,1]. Buckets are calendar
// days, not 24h spans: a task due 25 hours from now is "tomorrow" only
// if it still falls on tomorrow's date.
func dueDateFactor(due *time.Time, now time.Time) float64 {
	if due == nil {
		return 0.5
	}
	if due.Before(now) {
		return 1.0 // overdue
	}
	days := calendarDaysUntil(now, *due)
	switch {
	case days <= 0:
		return 0.9 // due today
	case days == 1:
		return 0.8 // due tomorrow
	case days <= 3:
		return 0.7
	case days <= 7:
		return 0.6
	default:
		return math.Max(0.1, 1.0-float64(days)/30.0)
	}
}

// calendarDaysUntil counts whole calendar-date boundaries between now
// and the due time, in now's location.
func calendarDaysUntil(now, due time.Time) int {
	nowDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dueLocal := due.In(now.Location())
	dueDate := time.Date(dueLocal.Year(), dueLocal.Month(), dueLocal.Day(), 0, 0, 0, 0, now.Location())
	return int(dueDate.Sub(nowDate).Hours() / 24)
}

// habitAlignmentFactor averages the frequency weight of habits sharing
// the task's category; 0.5 when no habit matches.
func habitAlignmentFactor(category string, habits []*models.Habit) float64 {
	if category == "" {
		return 0.5
	}
	sum := 0.0
	matched := 0
	for _, h := range habits {
		if h.Category == category {
			sum += models.FrequencyWeight(h.Frequency)
			matched++
		}
	}
	if matched == 0 {
		return 0.5
	}
	return sum / float64(matched)
}

func timeOfDayFactor(hour int) float64 {
	if v, ok := hourProductivity[hour]; ok {
		return v
	}
	return offPeakHourFactor
}

// complexityFactor derives effort from description length and subtask
// presence, discounted outside the peak windows where heavy tasks are
// less likely to get done.
func complexityFactor(task *models.Task, hour int) float64 {
	factor := 0.5
	switch {
	case len(task.Description) > 500 || task.HasSubtasks:
		factor = 0.8
	case len(task.Description) > 200:
		factor = 0.6
	}
	if !isPeakHour(hour) {
		factor *= 0.7
	}
	return factor
}
