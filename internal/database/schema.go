package database

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// SessionRecordId is the only id ever stored in session_records.
	SessionRecordId = "current"

	// RecordSchemaVersion is written to every session and history row.
	RecordSchemaVersion = 1
)

type SessionRecord struct {
	Id            string         `gorm:"primaryKey;size:64"`
	Messages      datatypes.JSON `gorm:"not null"`
	SchemaVersion int            `gorm:"not null;default:1"`
	UpdatedAt     time.Time
}

type HistoryRecord struct {
	Id            string `gorm:"primaryKey;size:64"`
	Title         string
	Model         string
	SavedAt       int64          `gorm:"not null;index:idx_history_saved_at"`
	Messages      datatypes.JSON `gorm:"not null"`
	SchemaVersion int            `gorm:"not null;default:1"`
}

// Value holds JSON text. It is a plain string because datatypes.JSON declares
// the column as JSON, which SQLite gives numeric affinity, so a scalar such as
// 1 would come back as an integer.
type MetaRecord struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value string `gorm:"type:text;not null"`
}
