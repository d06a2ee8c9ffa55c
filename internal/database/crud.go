package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func GetSessionRecord(ctx context.Context, db *gorm.DB) (*SessionRecord, error) {
	var record SessionRecord
	err := db.WithContext(ctx).Where("id = ?", SessionRecordId).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading session record: %w", err)
	}
	return &record, nil
}

func UpsertSessionRecord(ctx context.Context, db *gorm.DB, messages []byte) error {
	record := SessionRecord{
		Id:            SessionRecordId,
		Messages:      messages,
		SchemaVersion: RecordSchemaVersion,
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("error saving session record: %w", err)
	}
	return nil
}

func DeleteSessionRecord(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Delete(&SessionRecord{}, "id = ?", SessionRecordId).Error; err != nil {
		return fmt.Errorf("error deleting session record: %w", err)
	}
	return nil
}

func CountSessionRecords(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&SessionRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting session records: %w", err)
	}
	return count, nil
}

// ListHistoryRecords returns every history row newest first. Rows saved at the
// same instant are ordered by id so the listing is deterministic.
func ListHistoryRecords(ctx context.Context, db *gorm.DB) ([]HistoryRecord, error) {
	var records []HistoryRecord
	if err := db.WithContext(ctx).Order("saved_at DESC").Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error listing history records: %w", err)
	}
	return records, nil
}

func UpsertHistoryRecords(ctx context.Context, db *gorm.DB, records []HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&records).Error; err != nil {
		return fmt.Errorf("error saving history records: %w", err)
	}
	return nil
}

func DeleteHistoryRecords(ctx context.Context, db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).Where("id IN ?", ids).Delete(&HistoryRecord{}).Error; err != nil {
		return fmt.Errorf("error deleting history records: %w", err)
	}
	return nil
}

func DeleteAllHistoryRecords(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Where("1 = 1").Delete(&HistoryRecord{}).Error; err != nil {
		return fmt.Errorf("error clearing history records: %w", err)
	}
	return nil
}

func CountHistoryRecords(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&HistoryRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting history records: %w", err)
	}
	return count, nil
}

// GetMetaInt returns the integer stored under name, and false if it is unset.
func GetMetaInt(ctx context.Context, db *gorm.DB, name string) (int, bool, error) {
	var record MetaRecord
	err := db.WithContext(ctx).Where("name = ?", name).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("error reading meta record %s: %w", name, err)
	}

	var value int
	if err := json.Unmarshal([]byte(record.Value), &value); err != nil {
		return 0, false, fmt.Errorf("invalid value for meta record %s: %w", name, err)
	}
	return value, true, nil
}

func SetMetaInt(ctx context.Context, db *gorm.DB, name string, value int) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not marshal meta value: %w", err)
	}

	record := MetaRecord{Name: name, Value: string(b)}
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("error saving meta record %s: %w", name, err)
	}
	return nil
}
