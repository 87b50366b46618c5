package learning

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fluxtask/fluxtask/internal/analytics"
	"github.com/fluxtask/fluxtask/internal/db/sqlite"
	"github.com/fluxtask/fluxtask/internal/experiment"
	"github.com/fluxtask/fluxtask/internal/scoring"
	"github.com/fluxtask/fluxtask/internal/weights"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// EngineSuite tests the full feedback loop against a real store.
type EngineSuite struct {
	suite.Suite
	ctx     context.Context
	store   *sqlite.Store
	manager *weights.Manager
	engine  *Engine
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: ":memory:"})
	s.Require().NoError(err)
	s.store = store
	s.manager = weights.NewManager(store)

	as := analytics.NewService(store, store, store)
	ee := experiment.NewEngine(store, store)
	detector := experiment.NewDetector(store, store, experiment.DefaultDetectorConfig())
	calc := scoring.NewCalculator(scoring.DefaultConfig())
	s.engine = NewEngine(s.manager, store, as, ee, detector, calc, store, store, 0)
}

func (s *EngineSuite) TearDownTest() {
	s.engine.Wait()
	s.Require().NoError(s.store.Close())
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) task(id, userID string) *models.Task {
	created := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	return &models.Task{
		ID:        id,
		UserID:    userID,
		Title:     "task " + id,
		Category:  "work",
		CreatedAt: &created,
	}
}

// mondayMorning is 09:00 on a Monday (weekday key 2).
var mondayMorning = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *EngineSuite) TestRecordCompletion_GoodScenarios_WeightsAndMetric() {
	task := s.task("t1", "u1")
	s.Require().NoError(s.engine.RecordCompletion(s.ctx, task, mondayMorning))

	w, err := s.manager.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.InDelta(1.1, w.HourMultiplier(9), 1e-9)
	s.InDelta(1.1, w.DayMultiplier(2), 1e-9) // Monday
	s.InDelta(1.1, w.CategoryMultiplier("work"), 1e-9)
	// One success from neutral: 0.2*1 + 0.8*0.5 = 0.6.
	s.InDelta(0.6, w.TaskSuccessRate("t1"), 1e-9)
	s.InDelta(0.6, w.CategorySuccessRate("work"), 1e-9)
	// 08:00 creation to 09:00 completion.
	s.InDelta(60, w.CategoryAvgDuration["work"], 1e-9)

	metrics, err := s.store.RecentMetrics(s.ctx, "u1", "", 10)
	s.Require().NoError(err)
	s.Require().Len(metrics, 1)
	m := metrics[0]
	// The prediction is captured before this event's own update.
	s.InDelta(models.DefaultSuccessRate, m.PredictedScore, 1e-9)
	s.True(m.ActualSuccess)
	s.Equal("work", m.Category)
	s.Require().NotNil(m.ActualDuration)
	s.InDelta(60, *m.ActualDuration, 1e-9)
	// No category average existed yet, so no duration was predicted.
	s.Nil(m.PredictedDuration)
}

func (s *EngineSuite) TestRecordCompletion_GoodScenarios_RepeatedStepsAccumulate() {
	for i := 0; i < 5; i++ {
		task := s.task(fmt.Sprintf("t%d", i), "u1")
		s.Require().NoError(s.engine.RecordCompletion(s.ctx, task, mondayMorning))
	}
	w, err := s.manager.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.InDelta(1.5, w.HourMultiplier(9), 1e-9)
	s.InDelta(1.5, w.CategoryMultiplier("work"), 1e-9)
}

func (s *EngineSuite) TestRecordFailure_GoodScenarios_PunishesWeights() {
	task := s.task("t1", "u1")
	s.Require().NoError(s.engine.RecordFailure(s.ctx, task))

	w, err := s.manager.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.InDelta(0.9, w.CategoryMultiplier("work"), 1e-9)
	// One failure from neutral: 0.2*0 + 0.8*0.5 = 0.4.
	s.InDelta(0.4, w.TaskSuccessRate("t1"), 1e-9)

	metrics, err := s.store.RecentMetrics(s.ctx, "u1", "", 10)
	s.Require().NoError(err)
	s.Require().Len(metrics, 1)
	s.False(metrics[0].ActualSuccess)
	s.Nil(metrics[0].ActualDuration)
}

func (s *EngineSuite) TestGetScoreMultiplier_GoodScenarios_LearnedHoursWin() {
	for i := 0; i < 5; i++ {
		task := s.task(fmt.Sprintf("t%d", i), "u1")
		s.Require().NoError(s.engine.RecordCompletion(s.ctx, task, mondayMorning))
	}

	task := s.task("next", "u1")
	atNine := s.engine.GetScoreMultiplier(s.ctx, task, mondayMorning)
	atThree := s.engine.GetScoreMultiplier(s.ctx, task, mondayMorning.Add(-6*time.Hour))

	s.Greater(atNine, atThree, "trained hour should outrank an untrained one")
	s.Greater(atNine, 1.0)
}

func (s *EngineSuite) TestPrioritize_GoodScenarios_LearnedCategoryFirst() {
	// Train "work" up with successes at the scoring hour.
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.engine.RecordCompletion(s.ctx, s.task(fmt.Sprintf("t%d", i), "u1"), mondayMorning))
	}

	work := s.task("work-task", "u1")
	chores := s.task("chore-task", "u1")
	chores.Category = "chores"
	s.Require().NoError(s.store.UpsertTask(s.ctx, work))
	s.Require().NoError(s.store.UpsertTask(s.ctx, chores))

	scores, err := s.engine.PrioritizeTasks(s.ctx, "u1", mondayMorning)
	s.Require().NoError(err)
	s.Require().Len(scores, 2)
	s.Equal("work-task", scores[0].TaskID)
}

func (s *EngineSuite) TestExperiment_GoodScenarios_TreatmentOverridesStep() {
	ee := experiment.NewEngine(s.store, s.store)
	_, err := ee.CreateExperiment(s.ctx, "bigger steps", map[string]float64{
		models.ParamLearningRate: 0.3,
	}, 7)
	s.Require().NoError(err)

	// Bucketing is a pure hash; probe for one user per group.
	treatmentUser, controlUser := "", ""
	for i := 0; treatmentUser == "" || controlUser == ""; i++ {
		id := fmt.Sprintf("user-%d", i)
		if experiment.AssignGroup(id) == models.GroupTreatment {
			if treatmentUser == "" {
				treatmentUser = id
			}
		} else if controlUser == "" {
			controlUser = id
		}
	}

	now := time.Now().UTC()
	s.Require().NoError(s.engine.RecordCompletion(s.ctx, s.task("t1", treatmentUser), now))
	s.Require().NoError(s.engine.RecordCompletion(s.ctx, s.task("t2", controlUser), now))

	tw, err := s.manager.Get(s.ctx, treatmentUser)
	s.Require().NoError(err)
	s.InDelta(1.3, tw.CategoryMultiplier("work"), 1e-9)

	cw, err := s.manager.Get(s.ctx, controlUser)
	s.Require().NoError(err)
	s.InDelta(1.1, cw.CategoryMultiplier("work"), 1e-9)
}

func (s *EngineSuite) TestSetLearningRate_GoodScenarios_NextOutcomeUsesNewStep() {
	s.Require().NoError(s.engine.RecordCompletion(s.ctx, s.task("t1", "u1"), mondayMorning))

	s.engine.SetLearningRate(0.3)
	s.InDelta(0.3, s.engine.LearningRate(), 1e-9)
	s.Require().NoError(s.engine.RecordCompletion(s.ctx, s.task("t2", "u1"), mondayMorning))

	w, err := s.manager.Get(s.ctx, "u1")
	s.Require().NoError(err)
	// One default step then one reloaded step: 1.0 + 0.1 + 0.3.
	s.InDelta(1.4, w.CategoryMultiplier("work"), 1e-9)
}

// =============================================================================
// EDGE CASES - Boundary conditions and unusual inputs
// =============================================================================

func (s *EngineSuite) TestSetLearningRate_EdgeCases_InvalidRateIgnored() {
	s.engine.SetLearningRate(0)
	s.engine.SetLearningRate(-0.5)
	s.engine.SetLearningRate(1.5)
	s.InDelta(DefaultLearningRate, s.engine.LearningRate(), 1e-9)
}

func (s *EngineSuite) TestRecordCompletion_EdgeCases_ClampAtCap() {
	// Ten steps saturate the multiplier; ten more stay clamped.
	for i := 0; i < 20; i++ {
		task := s.task(fmt.Sprintf("t%d", i), "u1")
		s.Require().NoError(s.engine.RecordCompletion(s.ctx, task, mondayMorning))
	}
	w, err := s.manager.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.InDelta(models.MaxMultiplier, w.HourMultiplier(9), 1e-9)
}

func (s *EngineSuite) TestRecordCompletion_EdgeCases_NilTask() {
	s.Error(s.engine.RecordCompletion(s.ctx, nil, mondayMorning))
	s.Error(s.engine.RecordFailure(s.ctx, nil))
}

func (s *EngineSuite) TestGetScoreMultiplier_EdgeCases_FreshUserNearNeutral() {
	task := s.task("t1", "fresh")
	mult := s.engine.GetScoreMultiplier(s.ctx, task, mondayMorning)
	// All multipliers neutral, predicted success 0.5: 1 * (0.5+0.5) = 1.
	s.InDelta(1.0, mult, 1e-9)
}

func (s *EngineSuite) TestInsights_EdgeCases_FreshUserEmptyReport() {
	report, err := s.engine.Insights(s.ctx, "fresh", mondayMorning)
	s.Require().NoError(err)
	s.Equal("fresh", report.UserID)
	s.Equal(0, report.SampleCount)
	s.Len(report.BestHours, 3)
	s.Empty(report.TopCategories)
	s.Empty(report.WeakCategories)
	s.Equal(0, report.Recommendations.Contributors)
}

func (s *EngineSuite) TestInsights_GoodScenarios_ReflectsLearning() {
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.engine.RecordCompletion(s.ctx, s.task(fmt.Sprintf("t%d", i), "u1"), mondayMorning))
	}
	s.engine.Wait()

	report, err := s.engine.Insights(s.ctx, "u1", mondayMorning.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().NotEmpty(report.BestHours)
	s.Equal(9, report.BestHours[0].Hour)
	s.Equal(5, report.SampleCount)
	s.Require().Len(report.TopCategories, 1)
	s.Equal("work", report.TopCategories[0].Category)
	s.Greater(report.TopCategories[0].SuccessRate, 0.5)
}
