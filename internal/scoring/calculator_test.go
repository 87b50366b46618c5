package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// CalculatorSuite tests the priority calculator.
type CalculatorSuite struct {
	suite.Suite
	calc *Calculator
	now  time.Time
}

func (s *CalculatorSuite) SetupTest() {
	s.calc = NewCalculator(DefaultConfig())
	// Wednesday 10:00, inside the morning peak window.
	s.now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
}

func TestCalculatorSuite(t *testing.T) {
	suite.Run(t, new(CalculatorSuite))
}

func (s *CalculatorSuite) task(due *time.Time) *models.Task {
	return &models.Task{ID: "t1", UserID: "u1", Title: "task", DueDate: due}
}

func (s *CalculatorSuite) at(days int, hour int) *time.Time {
	t := time.Date(2026, 3, 4+days, hour, 0, 0, 0, time.UTC)
	return &t
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *CalculatorSuite) TestScore_GoodScenarios_WeightedSum() {
	// No due date (0.5), no habits (0.5), hour 10 (1.0), simple task in
	// peak (0.5), neutral multiplier:
	// 0.4*0.5 + 0.3*0.5 + 0.2*1.0 + 0.1*0.5 = 0.6
	score := s.calc.Score(s.task(nil), nil, s.now, 1.0)
	s.InDelta(0.6, score.Score, 1e-9)
	s.InDelta(0.5, score.Factors.DueDate, 1e-9)
	s.InDelta(1.0, score.Factors.TimeOfDay, 1e-9)
}

func (s *CalculatorSuite) TestScore_GoodScenarios_MultiplierScalesBase() {
	base := s.calc.Score(s.task(nil), nil, s.now, 1.0)
	boosted := s.calc.Score(s.task(nil), nil, s.now, 1.5)
	s.InDelta(base.Score*1.5, boosted.Score, 1e-9)
}

func (s *CalculatorSuite) TestScore_GoodScenarios_HabitAlignment() {
	task := s.task(nil)
	task.Category = "fitness"
	habits := []*models.Habit{
		{ID: "h1", UserID: "u1", Category: "fitness", Frequency: models.FrequencyDaily},
		{ID: "h2", UserID: "u1", Category: "fitness", Frequency: models.FrequencyWeekly},
		{ID: "h3", UserID: "u1", Category: "reading", Frequency: models.FrequencyDaily},
	}
	score := s.calc.Score(task, habits, s.now, 1.0)
	// Matching habits average (1.0 + 0.8) / 2 = 0.9.
	s.InDelta(0.9, score.Factors.HabitAlignment, 1e-9)
}

func (s *CalculatorSuite) TestDueDate_GoodScenarios_Buckets() {
	cases := []struct {
		name string
		due  *time.Time
		want float64
	}{
		{"overdue", s.at(-1, 10), 1.0},
		{"today", s.at(0, 23), 0.9},
		{"tomorrow", s.at(1, 9), 0.8},
		{"three days", s.at(3, 10), 0.7},
		{"seven days", s.at(7, 10), 0.6},
		{"fifteen days", s.at(15, 10), 0.5},
		{"none", nil, 0.5},
	}
	for _, tc := range cases {
		score := s.calc.Score(s.task(tc.due), nil, s.now, 1.0)
		s.InDelta(tc.want, score.Factors.DueDate, 1e-9, tc.name)
	}
}

func (s *CalculatorSuite) TestPrioritize_GoodScenarios_DescendingOrder() {
	tasks := []*models.Task{
		{ID: "far", UserID: "u1", DueDate: s.at(15, 10)},
		{ID: "overdue", UserID: "u1", DueDate: s.at(-1, 10)},
		{ID: "tomorrow", UserID: "u1", DueDate: s.at(1, 10)},
	}
	scores := s.calc.Prioritize(tasks, nil, s.now, nil)
	s.Require().Len(scores, 3)
	s.Equal("overdue", scores[0].TaskID)
	s.Equal("tomorrow", scores[1].TaskID)
	s.Equal("far", scores[2].TaskID)
}

func (s *CalculatorSuite) TestPrioritize_GoodScenarios_MultiplierReorders() {
	tasks := []*models.Task{
		{ID: "a", UserID: "u1"},
		{ID: "b", UserID: "u1"},
	}
	scores := s.calc.Prioritize(tasks, nil, s.now, func(t *models.Task) float64 {
		if t.ID == "b" {
			return 1.8
		}
		return 1.0
	})
	s.Equal("b", scores[0].TaskID)
}

// =============================================================================
// EDGE CASES - Boundary conditions and unusual inputs
// =============================================================================

func (s *CalculatorSuite) TestDueDate_EdgeCases_TomorrowIsCalendarDate() {
	// 25 hours out but two calendar dates away: not "tomorrow".
	lateNow := time.Date(2026, 3, 4, 23, 30, 0, 0, time.UTC)
	due := lateNow.Add(25 * time.Hour) // March 6, 00:30
	score := s.calc.Score(s.task(&due), nil, lateNow, 1.0)
	s.InDelta(0.7, score.Factors.DueDate, 1e-9)
}

func (s *CalculatorSuite) TestDueDate_EdgeCases_DistantFloor() {
	due := s.at(90, 10)
	score := s.calc.Score(s.task(due), nil, s.now, 1.0)
	s.InDelta(0.1, score.Factors.DueDate, 1e-9)
}

func (s *CalculatorSuite) TestComplexity_EdgeCases_OffPeakDiscount() {
	task := s.task(nil)
	task.HasSubtasks = true

	peak := s.calc.Score(task, nil, s.now, 1.0)
	s.InDelta(0.8, peak.Factors.Complexity, 1e-9)

	offPeak := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)
	evening := s.calc.Score(task, nil, offPeak, 1.0)
	s.InDelta(0.8*0.7, evening.Factors.Complexity, 1e-9)
}

func (s *CalculatorSuite) TestScore_EdgeCases_NonPositiveMultiplierNeutral() {
	with := s.calc.Score(s.task(nil), nil, s.now, 0)
	without := s.calc.Score(s.task(nil), nil, s.now, 1.0)
	s.InDelta(without.Score, with.Score, 1e-9)
}

func (s *CalculatorSuite) TestPrioritize_EdgeCases_TiesKeepInputOrder() {
	tasks := []*models.Task{
		{ID: "first", UserID: "u1"},
		{ID: "second", UserID: "u1"},
	}
	scores := s.calc.Prioritize(tasks, nil, s.now, nil)
	s.Equal("first", scores[0].TaskID)
	s.Equal("second", scores[1].TaskID)
}

func (s *CalculatorSuite) TestPrioritize_EdgeCases_EmptyInput() {
	scores := s.calc.Prioritize(nil, nil, s.now, nil)
	s.Empty(scores)
}
