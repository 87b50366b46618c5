package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// TopSimilarLimit is how many peers contribute to collaborative
// recommendations.
const TopSimilarLimit = 5

// Service computes per-user performance statistics and cross-user
// similarity.
type Service struct {
	weights      db.WeightReader
	metrics      db.MetricStore
	similarities db.SimilarityStore
}

// NewService creates an analytics service over the given stores.
func NewService(weights db.WeightReader, metrics db.MetricStore, similarities db.SimilarityStore) *Service {
	return &Service{
		weights:      weights,
		metrics:      metrics,
		similarities: similarities,
	}
}

// PerformanceStats aggregates the user's metrics over the trailing
// window ending at now.
func (s *Service) PerformanceStats(ctx context.Context, userID string, window time.Duration, now time.Time) (*models.PerformanceStats, error) {
	from := now.Add(-window)
	rows, err := s.metrics.MetricsInWindow(ctx, userID, from, now)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	return AggregateMetrics(userID, rows, from, now), nil
}

// AggregateMetrics folds metric rows into a PerformanceStats report.
func AggregateMetrics(userID string, rows []*models.PerformanceMetric, from, to time.Time) *models.PerformanceStats {
	stats := &models.PerformanceStats{
		UserID:                userID,
		WindowStart:           from,
		WindowEnd:             to,
		SampleCount:           len(rows),
		CategorySuccessRates:  make(map[string]float64),
		CategoryMeanPredicted: make(map[string]float64),
	}
	if len(rows) == 0 {
		return stats
	}

	correct := 0
	var errSum float64
	catSuccess := make(map[string]int)
	catCount := make(map[string]int)
	catPredicted := make(map[string]float64)

	for _, m := range rows {
		if m.PredictionCorrect() {
			correct++
		}
		if relErr, ok := m.RelativeTimeError(); ok {
			errSum += relErr
			stats.TimeEstimationSamples++
		}
		if m.Category != "" {
			catCount[m.Category]++
			catPredicted[m.Category] += m.PredictedScore
			if m.ActualSuccess {
				catSuccess[m.Category]++
			}
		}
	}

	stats.PredictionAccuracy = float64(correct) / float64(len(rows))
	if stats.TimeEstimationSamples > 0 {
		stats.MeanTimeEstimationError = errSum / float64(stats.TimeEstimationSamples)
	}
	for cat, count := range catCount {
		stats.CategorySuccessRates[cat] = float64(catSuccess[cat]) / float64(count)
		stats.CategoryMeanPredicted[cat] = catPredicted[cat] / float64(count)
	}
	return stats
}

// UpdateSimilarities recomputes the subject's similarity to every
// other known user and replaces all prior rows in one transaction.
func (s *Service) UpdateSimilarities(ctx context.Context, userID string) error {
	subject, err := s.weights.GetWeights(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		// Nothing learned yet; a neutral vector correlates to 0 with
		// everyone, so replace with an empty set.
		return s.similarities.ReplaceSimilarities(ctx, userID, nil)
	}
	if err != nil {
		return fmt.Errorf("load subject weights: %w", err)
	}

	all, err := s.weights.AllWeights(ctx)
	if err != nil {
		return fmt.Errorf("load peer weights: %w", err)
	}

	now := time.Now().UTC()
	sims := make([]models.UserSimilarity, 0, len(all))
	for _, other := range all {
		if other.UserID == userID {
			continue
		}
		sims = append(sims, models.UserSimilarity{
			UserID:      userID,
			OtherUserID: other.UserID,
			Score:       WeightSimilarity(subject, other),
			UpdatedAt:   now,
		})
	}

	if err := s.similarities.ReplaceSimilarities(ctx, userID, sims); err != nil {
		return fmt.Errorf("replace similarities: %w", err)
	}
	log.Debug().Str("user", userID).Int("peers", len(sims)).Msg("Similarities recomputed")
	return nil
}

// CollaborativeRecommendations blends per-category success rates and
// completion times from the subject's top similar peers, weighted by
// similarity and normalized by the total similarity weight. Returns
// empty maps when no similar users exist; never errors for that.
func (s *Service) CollaborativeRecommendations(ctx context.Context, userID string) (*models.CollaborativeRecommendation, error) {
	rec := &models.CollaborativeRecommendation{
		CategoryScores:    make(map[string]float64),
		CategoryDurations: make(map[string]float64),
	}

	sims, err := s.similarities.TopSimilarUsers(ctx, userID, TopSimilarLimit)
	if err != nil {
		return nil, fmt.Errorf("load similar users: %w", err)
	}

	var totalWeight float64
	scoreSums := make(map[string]float64)
	durationSums := make(map[string]float64)

	for _, sim := range sims {
		// Negative correlation carries no positive signal to borrow.
		if sim.Score <= 0 {
			continue
		}
		peer, err := s.weights.GetWeights(ctx, sim.OtherUserID)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load peer weights: %w", err)
		}
		for cat, rate := range peer.CategorySuccessRates {
			scoreSums[cat] += rate * sim.Score
		}
		for cat, minutes := range peer.CategoryAvgDuration {
			durationSums[cat] += minutes * sim.Score
		}
		totalWeight += sim.Score
		rec.Contributors++
	}

	if totalWeight <= 0 {
		return rec, nil
	}
	for cat, sum := range scoreSums {
		rec.CategoryScores[cat] = sum / totalWeight
	}
	for cat, sum := range durationSums {
		rec.CategoryDurations[cat] = sum / totalWeight
	}
	return rec, nil
}
