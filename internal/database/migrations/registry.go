// Package migrations provides database migration management for encodarr.
package migrations

import (
	"github.com/jmylchreest/encodarr/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
// - 001: Schema creation using GORM AutoMigrate
// - 002: Query indexes (status+created_at, ABR dashboard filter)
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002Indexes(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Job{},
				&models.StatisticsSample{},
				&models.ArchivedJob{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"statistics",
				"archives",
				"jobs",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// migration002Indexes adds the composite listing index and, on SQLite, a
// JSON expression index over the ABR flag used by dashboard filtering.
func migration002Indexes() Migration {
	return Migration{
		Version:     "002",
		Description: "Add listing and ABR filter indexes",
		Up: func(tx *gorm.DB) error {
			if err := tx.Exec(
				"CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at DESC)",
			).Error; err != nil {
				return err
			}

			// Expression indexes over json_extract are SQLite-only; the
			// ABR filter query falls back to a scan on other drivers.
			if tx.Dialector.Name() == "sqlite" {
				return tx.Exec(
					"CREATE INDEX IF NOT EXISTS idx_jobs_abr_enabled ON jobs (json_extract(full_config, '$.abrEnabled'))",
				).Error
			}
			return nil
		},
		Down: func(tx *gorm.DB) error {
			if err := tx.Exec("DROP INDEX IF EXISTS idx_jobs_status_created").Error; err != nil {
				return err
			}
			if tx.Dialector.Name() == "sqlite" {
				return tx.Exec("DROP INDEX IF EXISTS idx_jobs_abr_enabled").Error
			}
			return nil
		},
	}
}
