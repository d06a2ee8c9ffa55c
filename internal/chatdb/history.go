package chatdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"chatvault/internal/database"
	"chatvault/pkg/models"

	"gorm.io/gorm"
)

// HistoryStore keeps archived chats, one row per entry.
type HistoryStore struct {
	writeMu *sync.Mutex
	logger  *slog.Logger
}

func NewHistoryStore(writeMu *sync.Mutex, logger *slog.Logger) *HistoryStore {
	return &HistoryStore{writeMu: writeMu, logger: logger}
}

// List returns the archive newest first. A row whose messages cannot be
// decoded is logged and left out.
func (s *HistoryStore) List(ctx context.Context, db *gorm.DB) ([]models.HistoryEntry, error) {
	records, err := database.ListHistoryRecords(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	}

	entries := make([]models.HistoryEntry, 0, len(records))
	for _, record := range records {
		entry, err := historyEntryFromRecord(record)
		if err != nil {
			s.logger.Warn("skipping unreadable history entry", "id", record.Id, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *HistoryStore) Put(ctx context.Context, db *gorm.DB, entry models.HistoryEntry) error {
	record, err := historyRecordFromEntry(entry)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := database.UpsertHistoryRecords(ctx, db, []database.HistoryRecord{record}); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	}
	return nil
}

// DeleteMany removes the entries with the given ids. Unknown ids are ignored.
func (s *HistoryStore) DeleteMany(ctx context.Context, db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		return database.DeleteHistoryRecords(ctx, txn, ids)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	}
	return nil
}

func (s *HistoryStore) Clear(ctx context.Context, db *gorm.DB) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := database.DeleteAllHistoryRecords(ctx, db); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	}
	return nil
}

func historyRecordFromEntry(entry models.HistoryEntry) (database.HistoryRecord, error) {
	msgs := entry.Messages
	if msgs == nil {
		msgs = []models.HistoryMessage{}
	}

	b, err := json.Marshal(msgs)
	if err != nil {
		return database.HistoryRecord{}, fmt.Errorf("could not marshal messages for history entry %s: %w", entry.ID, err)
	}

	return database.HistoryRecord{
		Id:            entry.ID,
		Title:         entry.Title,
		Model:         entry.Model,
		SavedAt:       entry.SavedAt,
		Messages:      b,
		SchemaVersion: database.RecordSchemaVersion,
	}, nil
}

func historyEntryFromRecord(record database.HistoryRecord) (models.HistoryEntry, error) {
	var msgs []models.HistoryMessage
	if err := json.Unmarshal(record.Messages, &msgs); err != nil {
		return models.HistoryEntry{}, fmt.Errorf("%w: invalid messages for history entry %s: %w", ErrParseFailure, record.Id, err)
	}
	if msgs == nil {
		msgs = []models.HistoryMessage{}
	}

	return models.HistoryEntry{
		ID:       record.Id,
		Title:    record.Title,
		Model:    record.Model,
		SavedAt:  record.SavedAt,
		Messages: msgs,
	}, nil
}
