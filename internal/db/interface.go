// Package db defines the persistence interfaces for the fluxtask engine.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// ErrNotFound is returned when a referenced record does not exist.
// Callers surface it explicitly; it is never swallowed.
var ErrNotFound = errors.New("db: not found")

// ErrConflict is returned when an optimistic compare-and-swap write
// loses a race. Callers reload and retry the mutation.
var ErrConflict = errors.New("db: conflict")

// WeightReader defines read operations for user weight vectors.
type WeightReader interface {
	// GetWeights returns the stored weight vector, or ErrNotFound.
	GetWeights(ctx context.Context, userID string) (*models.UserWeights, error)
	// AllWeights returns every stored weight vector.
	AllWeights(ctx context.Context) ([]*models.UserWeights, error)
}

// WeightWriter defines write operations for user weight vectors.
type WeightWriter interface {
	// UpsertWeights persists the vector, creating it if absent. When
	// expected is non-zero the write only succeeds if the stored
	// last_updated still equals it; otherwise ErrConflict is returned.
	UpsertWeights(ctx context.Context, w *models.UserWeights, expected time.Time) error
}

// WeightStore combines read and write operations for user weights.
type WeightStore interface {
	WeightReader
	WeightWriter
}

// MetricStore persists append-only performance metrics.
type MetricStore interface {
	AppendMetric(ctx context.Context, m *models.PerformanceMetric) error
	// MetricsInWindow returns a user's metrics within [from, to),
	// ordered by timestamp ascending.
	MetricsInWindow(ctx context.Context, userID string, from, to time.Time) ([]*models.PerformanceMetric, error)
	// AllMetricsInWindow returns every user's metrics within [from, to),
	// ordered by timestamp ascending.
	AllMetricsInWindow(ctx context.Context, from, to time.Time) ([]*models.PerformanceMetric, error)
	// RecentMetrics returns up to limit most recent metrics for a user,
	// newest first. A non-empty category filters to that category.
	RecentMetrics(ctx context.Context, userID, category string, limit int) ([]*models.PerformanceMetric, error)
}

// ExperimentStore persists experiment configurations.
type ExperimentStore interface {
	CreateExperiment(ctx context.Context, e *models.ExperimentConfig) error
	// GetExperiment returns the experiment, or ErrNotFound.
	GetExperiment(ctx context.Context, id string) (*models.ExperimentConfig, error)
	// ActiveExperiments returns experiments whose window contains now
	// and whose active flag is set, oldest first.
	ActiveExperiments(ctx context.Context, now time.Time) ([]*models.ExperimentConfig, error)
	ListExperiments(ctx context.Context) ([]*models.ExperimentConfig, error)
	// UpdateExperiment overwrites the experiment's metrics map and
	// active flag. Returns ErrNotFound for an unknown id.
	UpdateExperiment(ctx context.Context, e *models.ExperimentConfig) error
}

// AnomalyStore persists append-only anomaly records.
type AnomalyStore interface {
	AppendAnomaly(ctx context.Context, a *models.AnomalyRecord) error
	// RecentAnomalies returns up to limit most recent anomalies for a
	// user, newest first.
	RecentAnomalies(ctx context.Context, userID string, limit int) ([]*models.AnomalyRecord, error)
}

// SimilarityStore persists directional user-similarity rows.
type SimilarityStore interface {
	// ReplaceSimilarities atomically replaces all rows for the subject
	// user with the provided set.
	ReplaceSimilarities(ctx context.Context, userID string, sims []models.UserSimilarity) error
	// TopSimilarUsers returns up to limit rows for the subject, highest
	// score first.
	TopSimilarUsers(ctx context.Context, userID string, limit int) ([]models.UserSimilarity, error)
}

// Store is the full persistence capability consumed by the engine.
type Store interface {
	WeightStore
	MetricStore
	ExperimentStore
	AnomalyStore
	SimilarityStore
}

// TaskRepository provides task access. The task system of record lives
// outside the engine; this is the narrow surface the engine consumes.
type TaskRepository interface {
	IncompleteTasks(ctx context.Context, userID string) ([]*models.Task, error)
	// TaskByID returns the task, or ErrNotFound.
	TaskByID(ctx context.Context, id string) (*models.Task, error)
}

// HabitRepository provides habit access.
type HabitRepository interface {
	HabitsForUser(ctx context.Context, userID string) ([]*models.Habit, error)
}

// UserRepository enumerates known users for similarity computation.
type UserRepository interface {
	AllUserIDs(ctx context.Context) ([]string, error)
}
