// Package analytics aggregates outcome metrics and blends
// recommendations across similar users.
package analytics

import (
	"math"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// Similarity blend weights: hourly patterns dominate, daily and
// category patterns share the rest.
const (
	hourlyBlendWeight   = 0.4
	dailyBlendWeight    = 0.3
	categoryBlendWeight = 0.3
)

// WeightSimilarity computes the combined similarity of two users'
// learned weight vectors:
//
//	0.4·corr(hourly) + 0.3·corr(daily) + 0.3·corr(category)
//
// Each correlation is Pearson over the union of keys, with missing
// keys defaulting to the neutral multiplier for both sides. Result is
// in [-1, 1].
func WeightSimilarity(a, b *models.UserWeights) float64 {
	hourly := correlateIntMaps(a.HourlyWeights, b.HourlyWeights)
	daily := correlateIntMaps(a.DailyWeights, b.DailyWeights)
	category := correlateStringMaps(a.CategoryWeights, b.CategoryWeights)
	return hourlyBlendWeight*hourly + dailyBlendWeight*daily + categoryBlendWeight*category
}

func correlateIntMaps(a, b map[int]float64) float64 {
	keys := make(map[int]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	xs := make([]float64, 0, len(keys))
	ys := make([]float64, 0, len(keys))
	for k := range keys {
		xs = append(xs, valueOrNeutral(a[k], a, k))
		ys = append(ys, valueOrNeutral(b[k], b, k))
	}
	return Pearson(xs, ys)
}

func valueOrNeutral(v float64, m map[int]float64, k int) float64 {
	if _, ok := m[k]; ok {
		return v
	}
	return models.NeutralMultiplier
}

func correlateStringMaps(a, b map[string]float64) float64 {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	xs := make([]float64, 0, len(keys))
	ys := make([]float64, 0, len(keys))
	for k := range keys {
		if v, ok := a[k]; ok {
			xs = append(xs, v)
		} else {
			xs = append(xs, models.NeutralMultiplier)
		}
		if v, ok := b[k]; ok {
			ys = append(ys, v)
		} else {
			ys = append(ys, models.NeutralMultiplier)
		}
	}
	return Pearson(xs, ys)
}

// Pearson computes the Pearson correlation coefficient of two equal
// length samples. Degenerate input (fewer than two points, or zero
// variance on either side) returns 0, never NaN.
func Pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
