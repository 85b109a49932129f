package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Core tables (Competitor, AsoKeyword)
		{
			ID: "001_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&Competitor{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&AsoKeyword{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("competitors", "aso_keywords")
			},
		},

		// Migration 002: App localizations
		{
			ID: "002_app_localizations",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&AppLocalization{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("app_localizations")
			},
		},
	})

	return m.Migrate()
}
