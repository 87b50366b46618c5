package learning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fluxtask/fluxtask/pkg/models"
)

const (
	// insightsWindow is the metric window aggregated into a report.
	insightsWindow = 30 * 24 * time.Hour

	topHours      = 3
	topDays       = 3
	topCategories = 3
)

// Insights summarizes what the model has learned about a user: their
// strongest hours and days, their best and weakest categories, and the
// collaborative signals borrowed from similar users.
func (e *Engine) Insights(ctx context.Context, userID string, now time.Time) (*models.InsightsReport, error) {
	w, err := e.weights.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("insights: %w", err)
	}

	stats, err := e.analytics.PerformanceStats(ctx, userID, insightsWindow, now)
	if err != nil {
		return nil, fmt.Errorf("insights: %w", err)
	}

	rec, err := e.analytics.CollaborativeRecommendations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("insights: %w", err)
	}

	report := &models.InsightsReport{
		UserID:          userID,
		GeneratedAt:     now,
		BestHours:       bestHours(w, topHours),
		BestDays:        bestDays(w, topDays),
		Recommendations: *rec,
		SampleCount:     stats.SampleCount,
	}
	report.TopCategories, report.WeakCategories = rankCategories(w, topCategories)
	return report, nil
}

func bestHours(w *models.UserWeights, limit int) []models.HourInsight {
	hours := make([]models.HourInsight, 0, len(w.HourlyWeights))
	for h, mult := range w.HourlyWeights {
		hours = append(hours, models.HourInsight{Hour: h, Multiplier: mult})
	}
	sort.Slice(hours, func(i, j int) bool {
		if hours[i].Multiplier != hours[j].Multiplier {
			return hours[i].Multiplier > hours[j].Multiplier
		}
		return hours[i].Hour < hours[j].Hour
	})
	if len(hours) > limit {
		hours = hours[:limit]
	}
	return hours
}

func bestDays(w *models.UserWeights, limit int) []models.DayInsight {
	days := make([]models.DayInsight, 0, len(w.DailyWeights))
	for d, mult := range w.DailyWeights {
		days = append(days, models.DayInsight{Day: d, Multiplier: mult})
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].Multiplier != days[j].Multiplier {
			return days[i].Multiplier > days[j].Multiplier
		}
		return days[i].Day < days[j].Day
	})
	if len(days) > limit {
		days = days[:limit]
	}
	return days
}

// rankCategories splits observed categories into the strongest and the
// weakest by learned success rate. A category appears on the weak side
// only when its rate has actually been observed and sits below the
// neutral default.
func rankCategories(w *models.UserWeights, limit int) (top, weak []models.CategoryInsight) {
	all := make([]models.CategoryInsight, 0, len(w.CategorySuccessRates))
	for cat, rate := range w.CategorySuccessRates {
		all = append(all, models.CategoryInsight{
			Category:    cat,
			Multiplier:  w.CategoryMultiplier(cat),
			SuccessRate: rate,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].SuccessRate != all[j].SuccessRate {
			return all[i].SuccessRate > all[j].SuccessRate
		}
		return all[i].Category < all[j].Category
	})

	for i := 0; i < len(all) && i < limit; i++ {
		top = append(top, all[i])
	}
	for i := len(all) - 1; i >= 0 && len(weak) < limit; i-- {
		if all[i].SuccessRate >= models.DefaultSuccessRate {
			break
		}
		weak = append(weak, all[i])
	}
	return top, weak
}
