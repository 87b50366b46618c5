package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fluxtask/fluxtask/internal/db/sqlite"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// ServiceSuite tests the analytics service against a real store.
type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *sqlite.Store
	service *Service
	now     time.Time
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: ":memory:"})
	s.Require().NoError(err)
	s.store = store
	s.service = NewService(store, store, store)
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// saveWeights persists a weight vector directly through the store.
func (s *ServiceSuite) saveWeights(w *models.UserWeights) {
	w.LastUpdated = s.now
	s.Require().NoError(s.store.UpsertWeights(s.ctx, w, time.Time{}))
}

// shapedWeights builds a user whose hourly pattern follows values and
// whose category signals are supplied literally.
func shapedWeights(userID string, hours []float64, rates, durations map[string]float64) *models.UserWeights {
	w := models.DefaultUserWeights(userID)
	for i, v := range hours {
		w.HourlyWeights[i] = v
	}
	for k, v := range rates {
		w.CategorySuccessRates[k] = v
	}
	for k, v := range durations {
		w.CategoryAvgDuration[k] = v
	}
	return w
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *ServiceSuite) TestStats_GoodScenarios_Aggregation() {
	predicted := 50.0
	actualShort := 40.0
	metrics := []*models.PerformanceMetric{
		{ID: "m1", UserID: "u1", TaskID: "t1", PredictedScore: 0.8, ActualSuccess: true,
			Category: "work", Timestamp: s.now.Add(-2 * time.Hour),
			PredictedDuration: &predicted, ActualDuration: &actualShort},
		{ID: "m2", UserID: "u1", TaskID: "t2", PredictedScore: 0.9, ActualSuccess: false,
			Category: "work", Timestamp: s.now.Add(-1 * time.Hour)},
		{ID: "m3", UserID: "u1", TaskID: "t3", PredictedScore: 0.3, ActualSuccess: false,
			Category: "home", Timestamp: s.now.Add(-30 * time.Minute)},
	}
	for _, m := range metrics {
		s.Require().NoError(s.store.AppendMetric(s.ctx, m))
	}

	stats, err := s.service.PerformanceStats(s.ctx, "u1", 24*time.Hour, s.now)
	s.Require().NoError(err)

	s.Equal(3, stats.SampleCount)
	// m1 predicted success and succeeded; m2 predicted success but
	// failed; m3 predicted failure and failed. Two of three correct.
	s.InDelta(2.0/3.0, stats.PredictionAccuracy, 1e-9)
	// Only m1 has durations: |50-40|/40 = 0.25.
	s.Equal(1, stats.TimeEstimationSamples)
	s.InDelta(0.25, stats.MeanTimeEstimationError, 1e-9)
	s.InDelta(0.5, stats.CategorySuccessRates["work"], 1e-9)
	s.InDelta(0.0, stats.CategorySuccessRates["home"], 1e-9)
	s.InDelta(0.85, stats.CategoryMeanPredicted["work"], 1e-9)
}

func (s *ServiceSuite) TestSimilarities_GoodScenarios_RecomputeAndRank() {
	pattern := []float64{1.8, 0.3, 1.6, 0.4, 1.7}
	inverse := []float64{0.3, 1.8, 0.4, 1.6, 0.2}

	s.saveWeights(shapedWeights("subject", pattern, nil, nil))
	s.saveWeights(shapedWeights("twin", pattern, nil, nil))
	s.saveWeights(shapedWeights("opposite", inverse, nil, nil))

	s.Require().NoError(s.service.UpdateSimilarities(s.ctx, "subject"))

	sims, err := s.store.TopSimilarUsers(s.ctx, "subject", 10)
	s.Require().NoError(err)
	s.Require().Len(sims, 2)
	s.Equal("twin", sims[0].OtherUserID)
	s.Greater(sims[0].Score, 0.0)
	s.Equal("opposite", sims[1].OtherUserID)
	s.Less(sims[1].Score, 0.0)
}

func (s *ServiceSuite) TestRecommendations_GoodScenarios_SimilarityWeightedBlend() {
	pattern := []float64{1.8, 0.3, 1.6, 0.4, 1.7}
	s.saveWeights(shapedWeights("subject", pattern, nil, nil))
	s.saveWeights(shapedWeights("peer1", pattern,
		map[string]float64{"work": 0.9}, map[string]float64{"work": 30}))
	s.saveWeights(shapedWeights("peer2", pattern,
		map[string]float64{"work": 0.5}, map[string]float64{"work": 60}))

	s.Require().NoError(s.service.UpdateSimilarities(s.ctx, "subject"))

	rec, err := s.service.CollaborativeRecommendations(s.ctx, "subject")
	s.Require().NoError(err)
	s.Equal(2, rec.Contributors)

	// Both peers share the subject's hourly pattern, so their blend
	// weights are equal and the result is a plain average.
	s.InDelta(0.7, rec.CategoryScores["work"], 1e-6)
	s.InDelta(45, rec.CategoryDurations["work"], 1e-6)
}

// =============================================================================
// EDGE CASES - Boundary conditions and unusual inputs
// =============================================================================

func (s *ServiceSuite) TestStats_EdgeCases_EmptyWindow() {
	stats, err := s.service.PerformanceStats(s.ctx, "nobody", time.Hour, s.now)
	s.Require().NoError(err)
	s.Equal(0, stats.SampleCount)
	s.InDelta(0.0, stats.PredictionAccuracy, 1e-9)
	s.Empty(stats.CategorySuccessRates)
}

func (s *ServiceSuite) TestSimilarities_EdgeCases_UnknownSubjectClearsRows() {
	s.Require().NoError(s.service.UpdateSimilarities(s.ctx, "ghost"))
	sims, err := s.store.TopSimilarUsers(s.ctx, "ghost", 10)
	s.Require().NoError(err)
	s.Empty(sims)
}

func (s *ServiceSuite) TestRecommendations_EdgeCases_NoSimilarUsers() {
	rec, err := s.service.CollaborativeRecommendations(s.ctx, "loner")
	s.Require().NoError(err)
	s.Equal(0, rec.Contributors)
	s.Empty(rec.CategoryScores)
	s.Empty(rec.CategoryDurations)
}

func (s *ServiceSuite) TestRecommendations_EdgeCases_NegativePeersIgnored() {
	pattern := []float64{1.8, 0.3, 1.6, 0.4, 1.7}
	inverse := []float64{0.3, 1.8, 0.4, 1.6, 0.2}
	s.saveWeights(shapedWeights("subject", pattern, nil, nil))
	s.saveWeights(shapedWeights("anti", inverse,
		map[string]float64{"work": 0.99}, nil))

	s.Require().NoError(s.service.UpdateSimilarities(s.ctx, "subject"))

	rec, err := s.service.CollaborativeRecommendations(s.ctx, "subject")
	s.Require().NoError(err)
	s.Equal(0, rec.Contributors)
	s.Empty(rec.CategoryScores)
}

func (s *ServiceSuite) TestSimilarities_EdgeCases_ReplaceIsIdempotent() {
	pattern := []float64{1.8, 0.3, 1.6}
	s.saveWeights(shapedWeights("subject", pattern, nil, nil))
	for i := 0; i < 3; i++ {
		s.saveWeights(shapedWeights(fmt.Sprintf("peer%d", i), pattern, nil, nil))
	}

	s.Require().NoError(s.service.UpdateSimilarities(s.ctx, "subject"))
	s.Require().NoError(s.service.UpdateSimilarities(s.ctx, "subject"))

	sims, err := s.store.TopSimilarUsers(s.ctx, "subject", 10)
	s.Require().NoError(err)
	s.Len(sims, 3)
}
