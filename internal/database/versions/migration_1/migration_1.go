package migration_1

import (
	"fmt"

	"gorm.io/gorm"
)

type SessionRecord struct {
	SchemaVersion int `gorm:"not null;default:1"`
}

type HistoryRecord struct {
	SchemaVersion int `gorm:"not null;default:1"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&SessionRecord{}, "schema_version"); err != nil {
		return fmt.Errorf("error adding SchemaVersion column to session_records: %w", err)
	}

	if err := db.Migrator().AddColumn(&HistoryRecord{}, "schema_version"); err != nil {
		return fmt.Errorf("error adding SchemaVersion column to history_records: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropColumn(&SessionRecord{}, "schema_version"); err != nil {
		return fmt.Errorf("error dropping SchemaVersion column from session_records: %w", err)
	}

	if err := db.Migrator().DropColumn(&HistoryRecord{}, "schema_version"); err != nil {
		return fmt.Errorf("error dropping SchemaVersion column from history_records: %w", err)
	}

	return nil
}
