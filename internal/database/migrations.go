package database

import (
	"log/slog"

	"chatvault/internal/database/versions/migration_0"
	"chatvault/internal/database/versions/migration_1"
	"chatvault/internal/database/versions/migration_2"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB, logger *slog.Logger) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: migration_0.Migration,
		},
		{
			ID:       "1",
			Migrate:  migration_1.Migration,
			Rollback: migration_1.Rollback,
		},
		{
			ID:      "2",
			Migrate: migration_2.Migration,
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// Run by the migrator when no previous migration is recorded, so a new
		// database goes straight to the latest schema.
		logger.Info("clean database detected, running full schema initialization")

		return txn.AutoMigrate(&SessionRecord{}, &HistoryRecord{}, &MetaRecord{})
	})

	return migrator
}
