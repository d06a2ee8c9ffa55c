package chatdb

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"chatvault/internal/storage"
	"chatvault/pkg/models"
)

// Fallback stores each collection as one serialized blob in the flat store,
// using the legacy keys and format.
type Fallback struct {
	kv     storage.KVStore
	logger *slog.Logger

	// Guards read-modify-write cycles on the history blob.
	mu sync.Mutex
}

func NewFallback(kv storage.KVStore, logger *slog.Logger) *Fallback {
	return &Fallback{kv: kv, logger: logger}
}

func (f *Fallback) GetSession(ctx context.Context) ([]models.Message, error) {
	data, err := readBlob(ctx, f.kv, LegacySessionKey)
	if err != nil {
		return nil, err
	}

	msgs, err := decodeSession(data, f.logger, LegacySessionKey)
	if err != nil {
		f.logger.Warn("discarding unreadable fallback session", "error", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func (f *Fallback) SetSession(ctx context.Context, msgs []models.Message) error {
	if len(msgs) == 0 {
		return f.kv.Delete(ctx, LegacySessionKey)
	}
	return writeBlob(ctx, f.kv, LegacySessionKey, msgs)
}

func (f *Fallback) ListHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.loadHistory(ctx)
}

func (f *Fallback) PutHistory(ctx context.Context, entry models.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadHistory(ctx)
	if err != nil {
		return err
	}

	if entry.Messages == nil {
		entry.Messages = []models.HistoryMessage{}
	}

	replaced := false
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	sortHistory(entries)
	return writeBlob(ctx, f.kv, LegacyHistoryKey, entries)
}

func (f *Fallback) DeleteHistory(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.loadHistory(ctx)
	if err != nil {
		return err
	}

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	kept := entries[:0]
	for _, entry := range entries {
		if !remove[entry.ID] {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return writeBlob(ctx, f.kv, LegacyHistoryKey, kept)
}

func (f *Fallback) ClearHistory(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.kv.Delete(ctx, LegacyHistoryKey)
}

// loadHistory treats a corrupt blob as empty; only read errors are returned.
func (f *Fallback) loadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	data, err := readBlob(ctx, f.kv, LegacyHistoryKey)
	if err != nil {
		return nil, err
	}

	entries, err := decodeHistory(data, f.logger, LegacyHistoryKey)
	if err != nil {
		if !errors.Is(err, ErrParseFailure) {
			return nil, err
		}
		f.logger.Warn("discarding unreadable fallback history", "error", err)
		entries = nil
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}

	sortHistory(entries)
	return entries, nil
}
