package chatdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"chatvault/internal/storage"
	"chatvault/pkg/models"
)

// Keys of the flat blobs written by older clients. The fallback path uses the
// same keys and format.
const (
	LegacySessionKey = "chat-session"
	LegacyHistoryKey = "chat-history"
)

// readBlob returns the value under key, or nil if the key is absent.
func readBlob(ctx context.Context, kv storage.KVStore, key string) ([]byte, error) {
	data, err := kv.Get(ctx, key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	return data, err
}

func writeBlob(ctx context.Context, kv storage.KVStore, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not marshal %s: %w", key, err)
	}
	return kv.Put(ctx, key, b)
}

// decodeArray decodes a JSON array element by element. Elements that fail to
// decode are skipped and counted; a value that is not an array is an error.
func decodeArray[T any](data []byte) ([]T, int, error) {
	if len(data) == 0 {
		return nil, 0, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrParseFailure, err)
	}

	items := make([]T, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			skipped++
			continue
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

func decodeSession(data []byte, logger *slog.Logger, key string) ([]models.Message, error) {
	msgs, skipped, err := decodeArray[models.Message](data)
	if skipped > 0 {
		logger.Warn("skipped malformed messages", "key", key, "skipped", skipped)
	}
	return msgs, err
}

// decodeHistory drops entries without an id. When an id repeats, the later
// entry replaces the earlier one, as an upsert by id would.
func decodeHistory(data []byte, logger *slog.Logger, key string) ([]models.HistoryEntry, error) {
	entries, skipped, err := decodeArray[models.HistoryEntry](data)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(entries))
	valid := make([]models.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			skipped++
			continue
		}
		if entry.Messages == nil {
			entry.Messages = []models.HistoryMessage{}
		}
		if i, ok := index[entry.ID]; ok {
			valid[i] = entry
			continue
		}
		index[entry.ID] = len(valid)
		valid = append(valid, entry)
	}

	if skipped > 0 {
		logger.Warn("skipped malformed history entries", "key", key, "skipped", skipped)
	}
	return valid, nil
}

// sortHistory orders entries newest first, breaking ties by ascending id.
func sortHistory(entries []models.HistoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SavedAt == entries[j].SavedAt {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].SavedAt > entries[j].SavedAt
	})
}
