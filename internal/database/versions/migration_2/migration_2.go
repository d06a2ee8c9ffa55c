package migration_2

import (
	"fmt"

	"gorm.io/gorm"
)

type MetaRecord struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value string `gorm:"type:text;not null"`
}

// Migration retypes meta_records.value as text. Values already coerced to
// integers are converted back to their text form when the table is copied.
func Migration(db *gorm.DB) error {
	if err := db.Migrator().AlterColumn(&MetaRecord{}, "Value"); err != nil {
		return fmt.Errorf("error changing meta_records.value to text: %w", err)
	}
	return nil
}
