package gorm

import (
	"database/sql"
	"time"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// GORM row models. Map-valued fields are stored as JSON text columns
// via the Scanner/Valuer types in pkg/models.

// WeightRow is one user's learned weight vector.
type WeightRow struct {
	UserID               string               `gorm:"primaryKey"`
	HourlyWeights        models.JSONIntKeyMap `gorm:"type:text;not null;default:'{}'"`
	DailyWeights         models.JSONIntKeyMap `gorm:"type:text;not null;default:'{}'"`
	CategoryWeights      models.JSONFloatMap  `gorm:"type:text;not null;default:'{}'"`
	TaskSuccessRates     models.JSONFloatMap  `gorm:"type:text;not null;default:'{}'"`
	CategorySuccessRates models.JSONFloatMap  `gorm:"type:text;not null;default:'{}'"`
	CategoryAvgDuration  models.JSONFloatMap  `gorm:"type:text;not null;default:'{}'"`
	Alpha                float64              `gorm:"type:real;default:0.2"`
	LastUpdatedEpoch     int64                `gorm:"not null;default:0"`
}

func (WeightRow) TableName() string { return "ml_weights" }

// MetricRow is one append-only performance metric.
type MetricRow struct {
	ID                string `gorm:"primaryKey"`
	UserID            string `gorm:"index:idx_metrics_user_ts,priority:1;not null"`
	TaskID            string `gorm:"not null"`
	PredictedScore    float64
	ActualSuccess     int
	PredictedDuration sql.NullFloat64
	ActualDuration    sql.NullFloat64
	Category          string `gorm:"not null;default:''"`
	TimestampEpoch    int64  `gorm:"index:idx_metrics_user_ts,priority:2,sort:desc;index:idx_metrics_ts;not null"`
}

func (MetricRow) TableName() string { return "ml_performance_metrics" }

// ExperimentRow is one experiment configuration.
type ExperimentRow struct {
	ID         string              `gorm:"primaryKey"`
	Name       string              `gorm:"not null"`
	StartEpoch int64               `gorm:"index:idx_experiments_active,priority:2;not null"`
	EndEpoch   int64               `gorm:"not null"`
	Parameters models.JSONFloatMap `gorm:"type:text;not null;default:'{}'"`
	Metrics    models.JSONFloatMap `gorm:"type:text;not null;default:'{}'"`
	Active     int                 `gorm:"index:idx_experiments_active,priority:1;default:1"`
}

func (ExperimentRow) TableName() string { return "ml_experiments" }

// AnomalyRow is one append-only anomaly record.
type AnomalyRow struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"index:idx_anomalies_user_ts,priority:1;not null"`
	TimestampEpoch int64  `gorm:"index:idx_anomalies_user_ts,priority:2,sort:desc;not null"`
	Type           string `gorm:"not null"`
	Metric         string `gorm:"not null"`
	Expected       float64
	Actual         float64
	ZScore         float64
	Description    string `gorm:"type:text;not null;default:''"`
}

func (AnomalyRow) TableName() string { return "ml_anomalies" }

// SimilarityRow is one directional similarity entry.
type SimilarityRow struct {
	UserID         string  `gorm:"primaryKey;index:idx_similarities_score,priority:1"`
	OtherUserID    string  `gorm:"primaryKey"`
	Score          float64 `gorm:"index:idx_similarities_score,priority:2,sort:desc"`
	UpdatedAtEpoch int64   `gorm:"not null"`
}

func (SimilarityRow) TableName() string { return "user_similarities" }

// TaskRow mirrors the externally owned task record.
type TaskRow struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"index:idx_tasks_user,priority:1;not null"`
	Title        string `gorm:"not null;default:''"`
	Description  string `gorm:"type:text;not null;default:''"`
	Category     string `gorm:"not null;default:''"`
	DueEpoch     sql.NullInt64
	CreatedEpoch sql.NullInt64
	HasSubtasks  int `gorm:"default:0"`
	Completed    int `gorm:"index:idx_tasks_user,priority:2;default:0"`
}

func (TaskRow) TableName() string { return "tasks" }

// HabitRow mirrors the externally owned habit record.
type HabitRow struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	Name      string `gorm:"not null;default:''"`
	Category  string `gorm:"not null;default:''"`
	Frequency string `gorm:"not null;default:'custom'"`
}

func (HabitRow) TableName() string { return "habits" }

// Conversions between row models and domain models.

func toWeightRow(w *models.UserWeights) *WeightRow {
	return &WeightRow{
		UserID:               w.UserID,
		HourlyWeights:        models.JSONIntKeyMap(w.HourlyWeights),
		DailyWeights:         models.JSONIntKeyMap(w.DailyWeights),
		CategoryWeights:      models.JSONFloatMap(w.CategoryWeights),
		TaskSuccessRates:     models.JSONFloatMap(w.TaskSuccessRates),
		CategorySuccessRates: models.JSONFloatMap(w.CategorySuccessRates),
		CategoryAvgDuration:  models.JSONFloatMap(w.CategoryAvgDuration),
		Alpha:                w.Alpha,
		LastUpdatedEpoch:     w.LastUpdated.UnixMilli(),
	}
}

func (r *WeightRow) toModel() *models.UserWeights {
	w := &models.UserWeights{
		UserID:               r.UserID,
		HourlyWeights:        map[int]float64(r.HourlyWeights),
		DailyWeights:         map[int]float64(r.DailyWeights),
		CategoryWeights:      map[string]float64(r.CategoryWeights),
		TaskSuccessRates:     map[string]float64(r.TaskSuccessRates),
		CategorySuccessRates: map[string]float64(r.CategorySuccessRates),
		CategoryAvgDuration:  map[string]float64(r.CategoryAvgDuration),
		Alpha:                r.Alpha,
	}
	if r.LastUpdatedEpoch > 0 {
		w.LastUpdated = time.UnixMilli(r.LastUpdatedEpoch).UTC()
	}
	w.EnsureMaps()
	return w
}

func toMetricRow(m *models.PerformanceMetric) *MetricRow {
	row := &MetricRow{
		ID:             m.ID,
		UserID:         m.UserID,
		TaskID:         m.TaskID,
		PredictedScore: m.PredictedScore,
		Category:       m.Category,
		TimestampEpoch: m.Timestamp.UnixMilli(),
	}
	if m.ActualSuccess {
		row.ActualSuccess = 1
	}
	if m.PredictedDuration != nil {
		row.PredictedDuration = sql.NullFloat64{Float64: *m.PredictedDuration, Valid: true}
	}
	if m.ActualDuration != nil {
		row.ActualDuration = sql.NullFloat64{Float64: *m.ActualDuration, Valid: true}
	}
	return row
}

func (r *MetricRow) toModel() *models.PerformanceMetric {
	m := &models.PerformanceMetric{
		ID:             r.ID,
		UserID:         r.UserID,
		TaskID:         r.TaskID,
		PredictedScore: r.PredictedScore,
		ActualSuccess:  r.ActualSuccess != 0,
		Category:       r.Category,
		Timestamp:      time.UnixMilli(r.TimestampEpoch).UTC(),
	}
	if r.PredictedDuration.Valid {
		v := r.PredictedDuration.Float64
		m.PredictedDuration = &v
	}
	if r.ActualDuration.Valid {
		v := r.ActualDuration.Float64
		m.ActualDuration = &v
	}
	return m
}

func toExperimentRow(e *models.ExperimentConfig) *ExperimentRow {
	row := &ExperimentRow{
		ID:         e.ID,
		Name:       e.Name,
		StartEpoch: e.StartDate.UnixMilli(),
		EndEpoch:   e.EndDate.UnixMilli(),
		Parameters: models.JSONFloatMap(e.Parameters),
		Metrics:    models.JSONFloatMap(e.Metrics),
	}
	if e.Active {
		row.Active = 1
	}
	return row
}

func (r *ExperimentRow) toModel() *models.ExperimentConfig {
	e := &models.ExperimentConfig{
		ID:         r.ID,
		Name:       r.Name,
		StartDate:  time.UnixMilli(r.StartEpoch).UTC(),
		EndDate:    time.UnixMilli(r.EndEpoch).UTC(),
		Parameters: map[string]float64(r.Parameters),
		Metrics:    map[string]float64(r.Metrics),
		Active:     r.Active != 0,
	}
	if e.Parameters == nil {
		e.Parameters = make(map[string]float64)
	}
	if e.Metrics == nil {
		e.Metrics = make(map[string]float64)
	}
	return e
}

func toTaskRow(t *models.Task) *TaskRow {
	row := &TaskRow{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
	}
	if t.DueDate != nil {
		row.DueEpoch = sql.NullInt64{Int64: t.DueDate.UnixMilli(), Valid: true}
	}
	if t.CreatedAt != nil {
		row.CreatedEpoch = sql.NullInt64{Int64: t.CreatedAt.UnixMilli(), Valid: true}
	}
	if t.HasSubtasks {
		row.HasSubtasks = 1
	}
	if t.Completed {
		row.Completed = 1
	}
	return row
}

func (r *TaskRow) toModel() *models.Task {
	t := &models.Task{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		HasSubtasks: r.HasSubtasks != 0,
		Completed:   r.Completed != 0,
	}
	if r.DueEpoch.Valid {
		due := time.UnixMilli(r.DueEpoch.Int64).UTC()
		t.DueDate = &due
	}
	if r.CreatedEpoch.Valid {
		created := time.UnixMilli(r.CreatedEpoch.Int64).UTC()
		t.CreatedAt = &created
	}
	return t
}
