package experiment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/fluxtask/fluxtask/internal/db/sqlite"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// AnomalySuite tests z-score anomaly detection over recorded metrics.
type AnomalySuite struct {
	suite.Suite
	ctx      context.Context
	store    *sqlite.Store
	detector *Detector
	base     time.Time
}

func (s *AnomalySuite) SetupTest() {
	s.ctx = context.Background()
	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: ":memory:"})
	s.Require().NoError(err)
	s.store = store
	s.detector = NewDetector(store, store, DefaultDetectorConfig())
	s.base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *AnomalySuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestAnomalySuite(t *testing.T) {
	suite.Run(t, new(AnomalySuite))
}

// appendMetric stores one completion event with the given prediction,
// at an increasing timestamp so the newest event is last.
func (s *AnomalySuite) appendMetric(seq int, predicted float64) {
	s.Require().NoError(s.store.AppendMetric(s.ctx, &models.PerformanceMetric{
		ID:             fmt.Sprintf("m-%d", seq),
		UserID:         "u1",
		TaskID:         fmt.Sprintf("t-%d", seq),
		PredictedScore: predicted,
		ActualSuccess:  true,
		Category:       "work",
		Timestamp:      s.base.Add(time.Duration(seq) * time.Minute),
	}))
}

// seedStableHistory writes 20 events whose predictions alternate
// tightly around 0.8 (mean 0.8, sample stddev ~0.0103).
func (s *AnomalySuite) seedStableHistory() {
	for i := 0; i < 20; i++ {
		predicted := 0.79
		if i%2 == 1 {
			predicted = 0.81
		}
		s.appendMetric(i, predicted)
	}
}

// =============================================================================
// GOOD SCENARIOS - Expected normal operations
// =============================================================================

func (s *AnomalySuite) TestDetect_GoodScenarios_FlagsOutlier() {
	s.seedStableHistory()
	s.appendMetric(20, 0.1)

	found, err := s.detector.DetectAnomalies(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(found, 1)

	a := found[0]
	s.Equal("u1", a.UserID)
	s.Equal(models.AnomalyMetricDeviation, a.Type)
	s.Equal(models.MetricCategorySuccessRate+":work", a.Metric)
	s.InDelta(0.8, a.Expected, 1e-6)
	s.InDelta(0.1, a.Actual, 1e-6)
	s.Greater(a.ZScore, 2.5)
	s.NotEmpty(a.Description)

	// The record is also persisted.
	stored, err := s.store.RecentAnomalies(s.ctx, "u1", 10)
	s.Require().NoError(err)
	s.Len(stored, 1)
}

func (s *AnomalySuite) TestDetect_GoodScenarios_NormalValuePasses() {
	s.seedStableHistory()
	s.appendMetric(20, 0.78) // z ~1.9, below threshold

	found, err := s.detector.DetectAnomalies(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *AnomalySuite) TestSetThresholds_GoodScenarios_ReloadTakesEffect() {
	s.seedStableHistory()
	s.appendMetric(20, 0.78) // z ~1.9

	found, err := s.detector.DetectAnomalies(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(found)

	// A lowered z threshold catches the same value on the next scan.
	s.detector.SetThresholds(0, 1.5)
	found, err = s.detector.DetectAnomalies(s.ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Greater(found[0].ZScore, 1.5)

	// Raising the sample minimum above the history size suppresses it
	// again; the zero minSamples above left the old minimum in place.
	s.detector.SetThresholds(25, 1.5)
	found, err = s.detector.DetectAnomalies(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(found)
}

// =============================================================================
// EDGE CASES - Boundary conditions and unusual inputs
// =============================================================================

func (s *AnomalySuite) TestDetect_EdgeCases_InsufficientHistory() {
	// Five events, below the 10-sample minimum: even a wild outlier is
	// not judged.
	for i := 0; i < 5; i++ {
		s.appendMetric(i, 0.8)
	}
	s.appendMetric(5, 0.05)

	found, err := s.detector.DetectAnomalies(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *AnomalySuite) TestDetect_EdgeCases_ZeroSpreadSkipped() {
	// Identical history has zero stddev; the z-score is undefined and
	// the series is skipped rather than divided by zero.
	for i := 0; i < 15; i++ {
		s.appendMetric(i, 0.8)
	}
	s.appendMetric(15, 0.75)

	found, err := s.detector.DetectAnomalies(s.ctx, "u1")
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *AnomalySuite) TestDetect_EdgeCases_NoMetrics() {
	found, err := s.detector.DetectAnomalies(s.ctx, "nobody")
	s.Require().NoError(err)
	s.Empty(found)
}
