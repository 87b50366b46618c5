package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: learning tables
		{
			ID: "001_learning_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&WeightRow{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&MetricRow{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&SimilarityRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("ml_weights", "ml_performance_metrics", "user_similarities")
			},
		},

		// Migration 002: experimentation tables
		{
			ID: "002_experimentation_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&ExperimentRow{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&AnomalyRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("ml_experiments", "ml_anomalies")
			},
		},

		// Migration 003: task and habit mirrors
		{
			ID: "003_task_habit_mirrors",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&TaskRow{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&HabitRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("tasks", "habits")
			},
		},
	})

	return m.Migrate()
}
