package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// StoreSuite tests the SQLite store implementation.
type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
	now   time.Time
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	store, err := NewStore(StoreConfig{Path: ":memory:"})
	s.Require().NoError(err)
	s.store = store
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *StoreSuite) TestWeights_GoodScenarios_RoundTrip() {
	w := models.DefaultUserWeights("u1")
	w.NudgeHour(9, 0.3)
	w.ObserveCategoryOutcome("work", true)
	w.LastUpdated = s.now

	s.Require().NoError(s.store.UpsertWeights(s.ctx, w, time.Time{}))

	got, err := s.store.GetWeights(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal("u1", got.UserID)
	s.InDelta(1.3, got.HourMultiplier(9), 1e-9)
	s.InDelta(0.6, got.CategorySuccessRate("work"), 1e-9)
	s.Equal(s.now.UnixMilli(), got.LastUpdated.UnixMilli())
}

func (s *StoreSuite) TestWeights_GoodScenarios_CASMatchSucceeds() {
	w := models.DefaultUserWeights("u1")
	w.LastUpdated = s.now
	s.Require().NoError(s.store.UpsertWeights(s.ctx, w, time.Time{}))

	w.NudgeDay(2, 0.1)
	w.LastUpdated = s.now.Add(time.Minute)
	s.Require().NoError(s.store.UpsertWeights(s.ctx, w, s.now))

	got, err := s.store.GetWeights(s.ctx, "u1")
	s.Require().NoError(err)
	s.InDelta(1.1, got.DayMultiplier(2), 1e-9)
}

func (s *StoreSuite) TestMetrics_GoodScenarios_WindowAndRecent() {
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.AppendMetric(s.ctx, &models.PerformanceMetric{
			ID:             fmt.Sprintf("m%d", i),
			UserID:         "u1",
			TaskID:         fmt.Sprintf("t%d", i),
			PredictedScore: 0.5,
			ActualSuccess:  true,
			Category:       "work",
			Timestamp:      s.now.Add(time.Duration(i) * time.Hour),
		}))
	}

	// Half-open window keeps the first three only.
	rows, err := s.store.MetricsInWindow(s.ctx, "u1", s.now, s.now.Add(3*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal("m0", rows[0].ID)
	s.Equal("m2", rows[2].ID)

	// RecentMetrics is newest first and capped by limit.
	recent, err := s.store.RecentMetrics(s.ctx, "u1", "", 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal("m4", recent[0].ID)
	s.Equal("m3", recent[1].ID)
}

func (s *StoreSuite) TestExperiments_GoodScenarios_ActiveFiltering() {
	running := &models.ExperimentConfig{
		ID: "e1", Name: "running", Active: true,
		StartDate: s.now.Add(-time.Hour), EndDate: s.now.Add(24 * time.Hour),
		Parameters: map[string]float64{models.ParamAlpha: 0.4},
		Metrics:    map[string]float64{},
	}
	ended := &models.ExperimentConfig{
		ID: "e2", Name: "ended", Active: true,
		StartDate: s.now.Add(-48 * time.Hour), EndDate: s.now.Add(-time.Hour),
		Parameters: map[string]float64{}, Metrics: map[string]float64{},
	}
	s.Require().NoError(s.store.CreateExperiment(s.ctx, running))
	s.Require().NoError(s.store.CreateExperiment(s.ctx, ended))

	active, err := s.store.ActiveExperiments(s.ctx, s.now)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("e1", active[0].ID)
	s.InDelta(0.4, active[0].Parameters[models.ParamAlpha], 1e-9)

	all, err := s.store.ListExperiments(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *StoreSuite) TestExperiments_GoodScenarios_UpdateOverwritesMetrics() {
	exp := &models.ExperimentConfig{
		ID: "e1", Name: "exp", Active: true,
		StartDate: s.now, EndDate: s.now.Add(24 * time.Hour),
		Parameters: map[string]float64{},
		Metrics:    map[string]float64{"old": 1},
	}
	s.Require().NoError(s.store.CreateExperiment(s.ctx, exp))

	exp.Metrics = map[string]float64{"new": 2}
	exp.Active = false
	s.Require().NoError(s.store.UpdateExperiment(s.ctx, exp))

	got, err := s.store.GetExperiment(s.ctx, "e1")
	s.Require().NoError(err)
	s.False(got.Active)
	s.NotContains(got.Metrics, "old")
	s.InDelta(2, got.Metrics["new"], 1e-9)
}

func (s *StoreSuite) TestTasksHabits_GoodScenarios_RoundTrip() {
	due := s.now.Add(24 * time.Hour)
	created := s.now.Add(-time.Hour)
	task := &models.Task{
		ID: "t1", UserID: "u1", Title: "write report", Category: "work",
		DueDate: &due, CreatedAt: &created,
	}
	s.Require().NoError(s.store.UpsertTask(s.ctx, task))
	s.Require().NoError(s.store.UpsertHabit(s.ctx, &models.Habit{
		ID: "h1", UserID: "u1", Name: "morning review",
		Category: "work", Frequency: models.FrequencyDaily,
	}))

	open, err := s.store.IncompleteTasks(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal("write report", open[0].Title)
	s.Require().NotNil(open[0].DueDate)
	s.Equal(due.UnixMilli(), open[0].DueDate.UnixMilli())

	s.Require().NoError(s.store.MarkTaskCompleted(s.ctx, "t1", true))
	open, err = s.store.IncompleteTasks(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(open)

	habits, err := s.store.HabitsForUser(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(habits, 1)
	s.Equal(models.FrequencyDaily, habits[0].Frequency)
}

func (s *StoreSuite) TestSimilarities_GoodScenarios_ReplaceAndRank() {
	sims := []models.UserSimilarity{
		{UserID: "u1", OtherUserID: "a", Score: 0.2, UpdatedAt: s.now},
		{UserID: "u1", OtherUserID: "b", Score: 0.9, UpdatedAt: s.now},
		{UserID: "u1", OtherUserID: "c", Score: -0.4, UpdatedAt: s.now},
	}
	s.Require().NoError(s.store.ReplaceSimilarities(s.ctx, "u1", sims))

	top, err := s.store.TopSimilarUsers(s.ctx, "u1", 2)
	s.Require().NoError(err)
	s.Require().Len(top, 2)
	s.Equal("b", top[0].OtherUserID)
	s.Equal("a", top[1].OtherUserID)

	// Replacement drops rows absent from the new set.
	s.Require().NoError(s.store.ReplaceSimilarities(s.ctx, "u1", sims[:1]))
	top, err = s.store.TopSimilarUsers(s.ctx, "u1", 10)
	s.Require().NoError(err)
	s.Len(top, 1)
}

// =============================================================================
// EDGE CASES - Boundary conditions and unusual inputs
// =============================================================================

func (s *StoreSuite) TestWeights_EdgeCases_NotFound() {
	_, err := s.store.GetWeights(s.ctx, "ghost")
	s.True(errors.Is(err, db.ErrNotFound))
}

func (s *StoreSuite) TestWeights_EdgeCases_CASMismatchConflicts() {
	w := models.DefaultUserWeights("u1")
	w.LastUpdated = s.now
	s.Require().NoError(s.store.UpsertWeights(s.ctx, w, time.Time{}))

	w.LastUpdated = s.now.Add(time.Minute)
	err := s.store.UpsertWeights(s.ctx, w, s.now.Add(-time.Hour))
	s.True(errors.Is(err, db.ErrConflict))
}

func (s *StoreSuite) TestExperiments_EdgeCases_NotFound() {
	_, err := s.store.GetExperiment(s.ctx, "ghost")
	s.True(errors.Is(err, db.ErrNotFound))

	err = s.store.UpdateExperiment(s.ctx, &models.ExperimentConfig{
		ID: "ghost", Parameters: map[string]float64{}, Metrics: map[string]float64{},
	})
	s.True(errors.Is(err, db.ErrNotFound))
}

func (s *StoreSuite) TestTasks_EdgeCases_NotFound() {
	_, err := s.store.TaskByID(s.ctx, "ghost")
	s.True(errors.Is(err, db.ErrNotFound))
}

func (s *StoreSuite) TestAnomalies_EdgeCases_LimitAndOrder() {
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.AppendAnomaly(s.ctx, &models.AnomalyRecord{
			ID: fmt.Sprintf("a%d", i), UserID: "u1",
			Timestamp: s.now.Add(time.Duration(i) * time.Minute),
			Type:      models.AnomalyMetricDeviation,
			Metric:    models.MetricPredictionAccuracy,
			ZScore:    3.0,
		}))
	}
	recent, err := s.store.RecentAnomalies(s.ctx, "u1", 3)
	s.Require().NoError(err)
	s.Require().Len(recent, 3)
	s.Equal("a4", recent[0].ID)
	s.Equal("a2", recent[2].ID)
}
