package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// CreateExperiment stores a new experiment configuration.
func (s *Store) CreateExperiment(ctx context.Context, e *models.ExperimentConfig) error {
	params, err := marshalMap(e.Parameters)
	if err != nil {
		return err
	}
	metrics, err := marshalMap(e.Metrics)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO ml_experiments (id, name, start_epoch, end_epoch, parameters, metrics, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.ExecContext(ctx, query,
		e.ID, e.Name, e.StartDate.UnixMilli(), e.EndDate.UnixMilli(),
		params, metrics, boolToInt(e.Active))
	if err != nil {
		return fmt.Errorf("create experiment: %w", err)
	}
	return nil
}

const experimentColumns = `id, name, start_epoch, end_epoch, parameters, metrics, active`

// GetExperiment returns one experiment by id.
func (s *Store) GetExperiment(ctx context.Context, id string) (*models.ExperimentConfig, error) {
	const query = `
		SELECT ` + experimentColumns + `
		FROM ml_experiments
		WHERE id = ?
	`
	row, err := s.QueryRowContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	e, err := scanExperiment(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	return e, err
}

// ActiveExperiments returns experiments whose window contains now and
// whose active flag is set, oldest first.
func (s *Store) ActiveExperiments(ctx context.Context, now time.Time) ([]*models.ExperimentConfig, error) {
	const query = `
		SELECT ` + experimentColumns + `
		FROM ml_experiments
		WHERE active = 1 AND start_epoch <= ? AND end_epoch > ?
		ORDER BY start_epoch ASC
	`
	millis := now.UnixMilli()
	rows, err := s.QueryContext(ctx, query, millis, millis)
	if err != nil {
		return nil, err
	}
	return collectExperiments(rows)
}

// ListExperiments returns all experiments, newest first.
func (s *Store) ListExperiments(ctx context.Context) ([]*models.ExperimentConfig, error) {
	const query = `
		SELECT ` + experimentColumns + `
		FROM ml_experiments
		ORDER BY start_epoch DESC
	`
	rows, err := s.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectExperiments(rows)
}

// UpdateExperiment overwrites the metrics map and active flag. The
// metrics map replaces the stored one wholesale; it is never merged.
func (s *Store) UpdateExperiment(ctx context.Context, e *models.ExperimentConfig) error {
	metrics, err := marshalMap(e.Metrics)
	if err != nil {
		return err
	}
	const query = `
		UPDATE ml_experiments
		SET metrics = ?, active = ?
		WHERE id = ?
	`
	res, err := s.ExecContext(ctx, query, metrics, boolToInt(e.Active), e.ID)
	if err != nil {
		return fmt.Errorf("update experiment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return db.ErrNotFound
	}
	return nil
}

func collectExperiments(rows *sql.Rows) ([]*models.ExperimentConfig, error) {
	defer rows.Close()

	var experiments []*models.ExperimentConfig
	for rows.Next() {
		e, err := scanExperiment(rows.Scan)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, e)
	}
	return experiments, rows.Err()
}

func scanExperiment(scan func(dest ...any) error) (*models.ExperimentConfig, error) {
	var (
		e              models.ExperimentConfig
		startMillis    int64
		endMillis      int64
		params, metric string
		active         int
	)
	if err := scan(&e.ID, &e.Name, &startMillis, &endMillis, &params, &metric, &active); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &e.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal experiment parameters: %w", err)
	}
	if err := json.Unmarshal([]byte(metric), &e.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal experiment metrics: %w", err)
	}
	e.StartDate = time.UnixMilli(startMillis).UTC()
	e.EndDate = time.UnixMilli(endMillis).UTC()
	e.Active = active != 0
	if e.Parameters == nil {
		e.Parameters = make(map[string]float64)
	}
	if e.Metrics == nil {
		e.Metrics = make(map[string]float64)
	}
	return &e, nil
}
