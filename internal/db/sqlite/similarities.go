package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// ReplaceSimilarities atomically replaces all similarity rows for the
// subject user (delete-then-insert in one transaction).
func (s *Store) ReplaceSimilarities(ctx context.Context, userID string, sims []models.UserSimilarity) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM user_similarities WHERE user_id = ?", userID); err != nil {
			return fmt.Errorf("delete similarities: %w", err)
		}
		const insert = `
			INSERT INTO user_similarities (user_id, other_user_id, score, updated_at_epoch)
			VALUES (?, ?, ?, ?)
		`
		for _, sim := range sims {
			if _, err := tx.ExecContext(ctx, insert,
				userID, sim.OtherUserID, sim.Score, sim.UpdatedAt.UnixMilli()); err != nil {
				return fmt.Errorf("insert similarity: %w", err)
			}
		}
		return nil
	})
}

// TopSimilarUsers returns up to limit rows for the subject, highest
// score first.
func (s *Store) TopSimilarUsers(ctx context.Context, userID string, limit int) ([]models.UserSimilarity, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `
		SELECT user_id, other_user_id, score, updated_at_epoch
		FROM user_similarities
		WHERE user_id = ?
		ORDER BY score DESC
		LIMIT ?
	`
	rows, err := s.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sims []models.UserSimilarity
	for rows.Next() {
		var (
			sim         models.UserSimilarity
			epochMillis int64
		)
		if err := rows.Scan(&sim.UserID, &sim.OtherUserID, &sim.Score, &epochMillis); err != nil {
			return nil, err
		}
		sim.UpdatedAt = time.UnixMilli(epochMillis).UTC()
		sims = append(sims, sim)
	}
	return sims, rows.Err()
}
