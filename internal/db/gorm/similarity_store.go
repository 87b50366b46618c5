package gorm

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fluxtask/fluxtask/pkg/models"
)

// ReplaceSimilarities atomically replaces all similarity rows for the
// subject user (delete-then-insert in one transaction).
func (s *Store) ReplaceSimilarities(ctx context.Context, userID string, sims []models.UserSimilarity) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&SimilarityRow{}).Error; err != nil {
			return fmt.Errorf("delete similarities: %w", err)
		}
		if len(sims) == 0 {
			return nil
		}
		rows := make([]SimilarityRow, 0, len(sims))
		for _, sim := range sims {
			rows = append(rows, SimilarityRow{
				UserID:         userID,
				OtherUserID:    sim.OtherUserID,
				Score:          sim.Score,
				UpdatedAtEpoch: sim.UpdatedAt.UnixMilli(),
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert similarities: %w", err)
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
	var rows []SimilarityRow
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("score DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top similar users: %w", err)
	}

	sims := make([]models.UserSimilarity, 0, len(rows))
	for _, r := range rows {
		sims = append(sims, models.UserSimilarity{
			UserID:      r.UserID,
			OtherUserID: r.OtherUserID,
			Score:       r.Score,
			UpdatedAt:   time.UnixMilli(r.UpdatedAtEpoch).UTC(),
		})
	}
	return sims, nil
}
