package chatdb

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"chatvault/internal/database"
	"chatvault/internal/storage"
	"chatvault/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func putLegacy(t *testing.T, kv storage.KVStore, key string, value any) {
	t.Helper()
	b, err := json.Marshal(value)
	require.NoError(t, err)
	require.NoError(t, kv.Put(context.Background(), key, b))
}

func legacyFixture(t *testing.T, kv storage.KVStore) {
	putLegacy(t, kv, LegacySessionKey, []models.Message{
		{Role: models.RoleUser, Content: "legacy question"},
		{Role: models.RoleAssistant, Content: "legacy answer"},
	})
	putLegacy(t, kv, LegacyHistoryKey, []models.HistoryEntry{entry("legacy", 42)})
}

func migrationVersion(t *testing.T, engine *database.Engine) int {
	t.Helper()
	db, err := engine.Open(context.Background())
	require.NoError(t, err)
	version, _, err := database.GetMetaInt(context.Background(), db, legacyMigrationMeta)
	require.NoError(t, err)
	return version
}

func TestMigration_LegacyDataOnFirstCall(t *testing.T) {
	engine := newTestEngine(t, testDBPath(t))
	flat := storage.NewMemoryKVStore()
	legacyFixture(t, flat)
	c := New(engine, flat, WithLogger(quietLogger()))
	ctx := context.Background()

	msgs, outcome := c.GetSessionMessages(ctx)
	assert.Equal(t, PathPrimary, outcome.Path)
	require.Len(t, msgs, 2)
	assert.Equal(t, "legacy question", msgs[0].Content)

	entries, _ := c.GetAllHistory(ctx)
	assert.Equal(t, []string{"legacy"}, entryIds(entries))
	assert.Equal(t, LegacyMigrationVersion, migrationVersion(t, engine))

	for _, key := range []string{LegacySessionKey, LegacyHistoryKey} {
		_, err := flat.Get(ctx, key)
		assert.ErrorIs(t, err, storage.ErrKeyNotFound, key)
	}

	// Garbage written under the retired keys is never read again.
	require.NoError(t, flat.Put(ctx, LegacySessionKey, []byte("{not json")))
	require.NoError(t, flat.Put(ctx, LegacyHistoryKey, []byte("[{")))

	msgs, outcome = c.GetSessionMessages(ctx)
	assert.Equal(t, PathPrimary, outcome.Path)
	assert.Len(t, msgs, 2)
	entries, outcome = c.GetAllHistory(ctx)
	assert.Equal(t, PathPrimary, outcome.Path)
	assert.Len(t, entries, 1)
}

func TestMigration_NoClobber(t *testing.T) {
	engine := newTestEngine(t, testDBPath(t))
	ctx := context.Background()

	db, err := engine.Open(ctx)
	require.NoError(t, err)
	record, err := historyRecordFromEntry(entry("existing", 7))
	require.NoError(t, err)
	require.NoError(t, database.UpsertHistoryRecords(ctx, db, []database.HistoryRecord{record}))

	flat := storage.NewMemoryKVStore()
	legacyFixture(t, flat)
	c := New(engine, flat, WithLogger(quietLogger()))

	entries, outcome := c.GetAllHistory(ctx)
	assert.Equal(t, PathPrimary, outcome.Path)
	assert.Equal(t, []models.HistoryEntry{entry("existing", 7)}, entries)

	msgs, _ := c.GetSessionMessages(ctx)
	assert.Empty(t, msgs)
	assert.Equal(t, LegacyMigrationVersion, migrationVersion(t, engine))

	_, err = flat.Get(ctx, LegacyHistoryKey)
	assert.NoError(t, err, "legacy data must be left untouched")
	_, err = flat.Get(ctx, LegacySessionKey)
	assert.NoError(t, err, "legacy data must be left untouched")
}

func TestMigration_ConcurrentColdStartRunsOnce(t *testing.T) {
	engine := newTestEngine(t, testDBPath(t))
	flat := newCountingKV()
	legacyFixture(t, flat)
	c := New(engine, flat, WithLogger(quietLogger()))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			msgs, outcome := c.GetSessionMessages(ctx)
			assert.Equal(t, PathPrimary, outcome.Path)
			assert.Len(t, msgs, 2)
		}()
		go func() {
			defer wg.Done()
			entries, outcome := c.GetAllHistory(ctx)
			assert.Equal(t, PathPrimary, outcome.Path)
			assert.Len(t, entries, 1)
		}()
	}
	wg.Wait()

	for _, key := range []string{LegacySessionKey, LegacyHistoryKey} {
		gets, deletes := flat.counts(key)
		assert.Equal(t, 1, gets, key)
		assert.Equal(t, 1, deletes, key)
	}
}

func TestMigration_AtMostOncePerDatabase(t *testing.T) {
	path := testDBPath(t)
	ctx := context.Background()

	first := New(newTestEngine(t, path), storage.NewMemoryKVStore(), WithLogger(quietLogger()))
	first.GetSessionMessages(ctx)

	// A later process finds new legacy blobs, but the database has already
	// recorded its migration.
	flat := storage.NewMemoryKVStore()
	legacyFixture(t, flat)
	second := New(newTestEngine(t, path), flat, WithLogger(quietLogger()))

	msgs, _ := second.GetSessionMessages(ctx)
	assert.Empty(t, msgs)
	entries, _ := second.GetAllHistory(ctx)
	assert.Empty(t, entries)

	_, err := flat.Get(ctx, LegacyHistoryKey)
	assert.NoError(t, err)
}

func TestMigration_VersionSurvivesReopen(t *testing.T) {
	path := testDBPath(t)
	ctx := context.Background()

	flat := storage.NewMemoryKVStore()
	legacyFixture(t, flat)
	first := newTestEngine(t, path)
	New(first, flat, WithLogger(quietLogger())).GetSessionMessages(ctx)
	require.NoError(t, first.Close())

	second := newTestEngine(t, path)
	db, err := second.Open(ctx)
	require.NoError(t, err)

	migrator := NewMigrator(storage.NewMemoryKVStore(), &sync.Mutex{}, quietLogger())
	version, err := migrator.Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, LegacyMigrationVersion, version)

	report, err := migrator.EnsureMigrated(ctx, db)
	require.NoError(t, err)
	assert.True(t, report.AlreadyDone)

	status := New(second, flat, WithLogger(quietLogger())).Status(ctx)
	assert.Equal(t, LegacyMigrationVersion, status.MigrationVersion)
	assert.True(t, status.SessionStored)
	assert.Equal(t, int64(1), status.HistoryEntries)
}

func TestMigration_MalformedLegacyIsEmpty(t *testing.T) {
	engine := newTestEngine(t, testDBPath(t))
	flat := storage.NewMemoryKVStore()
	ctx := context.Background()
	require.NoError(t, flat.Put(ctx, LegacySessionKey, []byte("not json at all")))
	require.NoError(t, flat.Put(ctx, LegacyHistoryKey, []byte(`{"id":"object-not-array"}`)))

	c := New(engine, flat, WithLogger(quietLogger()))

	msgs, outcome := c.GetSessionMessages(ctx)
	assert.Equal(t, PathPrimary, outcome.Path)
	assert.Empty(t, msgs)
	assert.Equal(t, LegacyMigrationVersion, migrationVersion(t, engine))

	// Nothing was migrated, so the legacy blobs stay where they were.
	data, err := flat.Get(ctx, LegacySessionKey)
	require.NoError(t, err)
	assert.Equal(t, "not json at all", string(data))
}

func TestMigration_SkipsBadHistoryEntries(t *testing.T) {
	engine := newTestEngine(t, testDBPath(t))
	flat := storage.NewMemoryKVStore()
	ctx := context.Background()
	require.NoError(t, flat.Put(ctx, LegacyHistoryKey, []byte(`[
		{"id":"a","title":"one","savedAt":1,"messages":[]},
		{"title":"no id","savedAt":2},
		"not an entry",
		{"id":"a","title":"duplicate","savedAt":3},
		{"id":"b","title":"two","savedAt":4}
	]`)))

	c := New(engine, flat, WithLogger(quietLogger()))

	entries, _ := c.GetAllHistory(ctx)
	require.Equal(t, []string{"b", "a"}, entryIds(entries))
	assert.Equal(t, "duplicate", entries[1].Title)
	assert.Equal(t, int64(3), entries[1].SavedAt)
	assert.Equal(t, []models.HistoryMessage{}, entries[0].Messages)
}

func TestMigration_TransactionFailureStillRecordsVersion(t *testing.T) {
	engine := newTestEngine(t, testDBPath(t))
	flat := storage.NewMemoryKVStore()
	legacyFixture(t, flat)
	ctx := context.Background()

	db, err := engine.Open(ctx)
	require.NoError(t, err)

	const callback = "test:fail_history_insert"
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register(callback, func(txn *gorm.DB) {
		if txn.Statement.Table == "history_records" {
			txn.AddError(errors.New("disk full"))
		}
	}))

	migrator := NewMigrator(flat, &sync.Mutex{}, quietLogger())
	report, err := migrator.EnsureMigrated(ctx, db)
	require.NoError(t, err)
	assert.False(t, report.Migrated)
	assert.Equal(t, "transaction failed", report.Skipped)

	require.NoError(t, db.Callback().Create().Remove(callback))

	assert.Equal(t, LegacyMigrationVersion, migrationVersion(t, engine))

	count, err := database.CountSessionRecords(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "the failed transaction must not leave a partial session")

	_, err = flat.Get(ctx, LegacySessionKey)
	assert.NoError(t, err, "legacy data is kept when migration fails")

	report, err = migrator.EnsureMigrated(ctx, db)
	require.NoError(t, err)
	assert.True(t, report.AlreadyDone)
}
