package migration_0

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SessionRecord struct {
	Id        string         `gorm:"primaryKey;size:64"`
	Messages  datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

type HistoryRecord struct {
	Id       string `gorm:"primaryKey;size:64"`
	Title    string
	Model    string
	SavedAt  int64          `gorm:"not null;index:idx_history_saved_at"`
	Messages datatypes.JSON `gorm:"not null"`
}

type MetaRecord struct {
	Name  string         `gorm:"primaryKey;size:64"`
	Value datatypes.JSON `gorm:"not null"`
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&SessionRecord{}, &HistoryRecord{}, &MetaRecord{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
