package chatdb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"chatvault/internal/database"
	"chatvault/internal/storage"
	"chatvault/pkg/models"

	"gorm.io/gorm"
)

var errBlocked = errors.New("engine blocked")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingKV counts calls per key on top of an in-memory store.
type countingKV struct {
	storage.KVStore

	mu      sync.Mutex
	gets    map[string]int
	deletes map[string]int
}

func newCountingKV() *countingKV {
	return &countingKV{
		KVStore: storage.NewMemoryKVStore(),
		gets:    make(map[string]int),
		deletes: make(map[string]int),
	}
}

func (c *countingKV) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	c.gets[key]++
	c.mu.Unlock()
	return c.KVStore.Get(ctx, key)
}

func (c *countingKV) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	c.deletes[key]++
	c.mu.Unlock()
	return c.KVStore.Delete(ctx, key)
}

func (c *countingKV) counts(key string) (gets, deletes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets[key], c.deletes[key]
}

func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "db", "chat.db")
}

func newTestEngine(t *testing.T, path string) *database.Engine {
	t.Helper()
	engine := database.NewEngine(path, quietLogger())
	t.Cleanup(func() { engine.Close() }) //nolint:errcheck
	return engine
}

// toggleEngine fails to open while blocked is set.
func toggleEngine(t *testing.T, path string, blocked *atomic.Bool) *database.Engine {
	t.Helper()
	inner := database.SqliteOpener(path, quietLogger())
	engine := database.NewEngineWithOpener(func(ctx context.Context) (*gorm.DB, error) {
		if blocked.Load() {
			return nil, errBlocked
		}
		return inner(ctx)
	}, quietLogger())
	t.Cleanup(func() { engine.Close() }) //nolint:errcheck
	return engine
}

func newTestChatDB(t *testing.T) (*ChatDB, *database.Engine, storage.KVStore) {
	t.Helper()
	engine := newTestEngine(t, testDBPath(t))
	flat := storage.NewMemoryKVStore()
	return New(engine, flat, WithLogger(quietLogger())), engine, flat
}

func entry(id string, savedAt int64) models.HistoryEntry {
	return models.HistoryEntry{
		ID:      id,
		Title:   "chat " + id,
		Model:   "test-model",
		SavedAt: savedAt,
		Messages: []models.HistoryMessage{
			{Role: models.RoleUser, Content: "question " + id},
			{Role: models.RoleAssistant, Content: "answer " + id},
		},
	}
}

func entryIds(entries []models.HistoryEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func sampleMessages() []models.Message {
	reasoning := "short"
	return []models.Message{
		{Role: models.RoleUser, Content: "hello", Attachments: []models.Attachment{{Type: "image", Name: "a.png", Data: "AAAA"}}},
		{
			Role:      models.RoleAssistant,
			Content:   "hi there",
			Reasoning: &reasoning,
			Usage:     &models.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
			ToolCalls: []models.ToolCall{{ID: "c1", Name: "search", Arguments: `{"q":"x"}`}},
		},
	}
}

var errBroken = errors.New("flat store broken")

type brokenKV struct{}

func (brokenKV) Get(ctx context.Context, key string) ([]byte, error) { return nil, errBroken }

func (brokenKV) Put(ctx context.Context, key string, value []byte) error { return errBroken }

func (brokenKV) Delete(ctx context.Context, key string) error { return errBroken }
