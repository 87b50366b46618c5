package experiment

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// DetectorConfig contains thresholds for anomaly detection.
type DetectorConfig struct {
	// HistoryLimit caps how many recent metric rows feed each series.
	HistoryLimit int
	// MinSamples is the minimum history size before a series is
	// judged; below it, insufficient data is a silent skip.
	MinSamples int
	// ZThreshold is the z-score above which a value is anomalous.
	ZThreshold float64
	// AccuracyWindow is the trailing window used to turn per-event
	// prediction correctness into a rolling accuracy series.
	AccuracyWindow int
}

// DefaultDetectorConfig returns the default detection thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		HistoryLimit:   100,
		MinSamples:     10,
		ZThreshold:     2.5,
		AccuracyWindow: 10,
	}
}

// Detector flags metric values far outside a user's own history.
type Detector struct {
	metrics   db.MetricStore
	anomalies db.AnomalyStore

	// configMu guards config, whose thresholds are hot-reloadable.
	configMu sync.RWMutex
	config   DetectorConfig
}

// NewDetector creates an anomaly detector over the given stores.
func NewDetector(metrics db.MetricStore, anomalies db.AnomalyStore, config DetectorConfig) *Detector {
	if config.HistoryLimit <= 0 {
		config = DefaultDetectorConfig()
	}
	return &Detector{metrics: metrics, anomalies: anomalies, config: config}
}

// SetThresholds replaces the sample-size and z-score thresholds for
// subsequent scans. Non-positive values are ignored field by field.
func (d *Detector) SetThresholds(minSamples int, zThreshold float64) {
	d.configMu.Lock()
	if minSamples > 0 {
		d.config.MinSamples = minSamples
	}
	if zThreshold > 0 {
		d.config.ZThreshold = zThreshold
	}
	d.configMu.Unlock()
}

func (d *Detector) snapshot() DetectorConfig {
	d.configMu.RLock()
	defer d.configMu.RUnlock()
	return d.config
}

// DetectAnomalies evaluates the user's per-category success rates,
// time-estimation error, and prediction accuracy against their own
// history, appending an AnomalyRecord for every value whose z-score
// exceeds the threshold. Returns the records it appended.
func (d *Detector) DetectAnomalies(ctx context.Context, userID string) ([]*models.AnomalyRecord, error) {
	cfg := d.snapshot()
	rows, err := d.metrics.RecentMetrics(ctx, userID, "", cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load metric history: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// RecentMetrics returns newest first; series are built oldest first.
	ordered := make([]*models.PerformanceMetric, len(rows))
	for i, m := range rows {
		ordered[len(rows)-1-i] = m
	}

	now := time.Now().UTC()
	var found []*models.AnomalyRecord

	for metric, series := range buildSeries(ordered, cfg) {
		history, current, ok := splitSeries(series)
		if !ok {
			continue
		}
		z, expected, anomalous := evaluate(history, current, cfg)
		if !anomalous {
			continue
		}
		record := &models.AnomalyRecord{
			ID:        uuid.NewString(),
			UserID:    userID,
			Timestamp: now,
			Type:      models.AnomalyMetricDeviation,
			Metric:    metric,
			Expected:  expected,
			Actual:    current,
			ZScore:    z,
			Description: fmt.Sprintf("%s deviated from recent history: expected %.3f, observed %.3f (z=%.2f)",
				metric, expected, current, z),
		}
		if err := d.anomalies.AppendAnomaly(ctx, record); err != nil {
			return found, fmt.Errorf("append anomaly: %w", err)
		}
		log.Warn().Str("user", userID).Str("metric", metric).
			Float64("z_score", z).Msg("Anomaly detected")
		found = append(found, record)
	}
	return found, nil
}

// buildSeries derives the monitored value series from the metric rows,
// oldest first:
//   - one success-rate series per category, from the recorded
//     pre-update predictions (the model's EMA rate at event time)
//   - one relative time-estimation-error series
//   - one rolling prediction-accuracy series
func buildSeries(ordered []*models.PerformanceMetric, cfg DetectorConfig) map[string][]float64 {
	series := make(map[string][]float64)

	var correctness []float64
	for _, m := range ordered {
		if m.Category != "" {
			key := models.MetricCategorySuccessRate + ":" + m.Category
			series[key] = append(series[key], m.PredictedScore)
		}
		if relErr, ok := m.RelativeTimeError(); ok {
			series[models.MetricTimeEstimationError] = append(series[models.MetricTimeEstimationError], relErr)
		}
		if m.PredictionCorrect() {
			correctness = append(correctness, 1)
		} else {
			correctness = append(correctness, 0)
		}
	}

	// Per-event correctness is 0/1; a rolling window turns it into an
	// accuracy rate whose drift is meaningful to test.
	if len(correctness) >= cfg.AccuracyWindow {
		window := cfg.AccuracyWindow
		var rolling []float64
		var sum float64
		for i, v := range correctness {
			sum += v
			if i >= window {
				sum -= correctness[i-window]
			}
			if i >= window-1 {
				rolling = append(rolling, sum/float64(window))
			}
		}
		series[models.MetricPredictionAccuracy] = rolling
	}

	return series
}

// splitSeries separates the newest value (the observation under test)
// from its history.
func splitSeries(series []float64) (history []float64, current float64, ok bool) {
	if len(series) < 2 {
		return nil, 0, false
	}
	return series[:len(series)-1], series[len(series)-1], true
}

// evaluate computes the z-score of current against the history's mean
// and sample standard deviation. Insufficient history or zero spread
// means no anomaly is possible; both are silent skips, never errors.
func evaluate(history []float64, current float64, cfg DetectorConfig) (z, expected float64, anomalous bool) {
	if len(history) < cfg.MinSamples {
		return 0, 0, false
	}

	var sum float64
	for _, v := range history {
		sum += v
	}
	mean := sum / float64(len(history))

	var ss float64
	for _, v := range history {
		diff := v - mean
		ss += diff * diff
	}
	stddev := math.Sqrt(ss / float64(len(history)-1))
	if stddev == 0 {
		return 0, mean, false
	}

	z = math.Abs(current-mean) / stddev
	return z, mean, z > cfg.ZThreshold
}
