package chatdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"chatvault/internal/database"
	"chatvault/internal/storage"
	"chatvault/pkg/models"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	// LegacyMigrationVersion is the version recorded once the flat blobs have
	// been folded into the database. Raise it when a new data step is added.
	LegacyMigrationVersion = 1

	legacyMigrationMeta = "legacy_migration_version"
)

type MigrationReport struct {
	AlreadyDone     bool
	Migrated        bool
	SessionMessages int
	HistoryEntries  int
	Skipped         string
}

// Migrator moves the legacy flat blobs into the database at most once per
// database. It never merges into collections that already hold data.
type Migrator struct {
	legacy  storage.KVStore
	logger  *slog.Logger
	writeMu *sync.Mutex

	group singleflight.Group
	done  atomic.Bool
}

func NewMigrator(legacy storage.KVStore, writeMu *sync.Mutex, logger *slog.Logger) *Migrator {
	return &Migrator{legacy: legacy, writeMu: writeMu, logger: logger}
}

func (m *Migrator) EnsureMigrated(ctx context.Context, db *gorm.DB) (MigrationReport, error) {
	if m.done.Load() {
		return MigrationReport{AlreadyDone: true}, nil
	}

	res, err, _ := m.group.Do("migrate", func() (any, error) {
		if m.done.Load() {
			return MigrationReport{AlreadyDone: true}, nil
		}

		report, err := m.migrate(context.WithoutCancel(ctx), db)
		if err != nil {
			return report, err
		}
		m.done.Store(true)

		if !report.AlreadyDone {
			m.logger.Info("legacy migration finished",
				"migrated", report.Migrated,
				"session_messages", report.SessionMessages,
				"history_entries", report.HistoryEntries,
				"skipped", report.Skipped,
			)
		}
		return report, nil
	})
	report, _ := res.(MigrationReport)
	return report, err
}

// Version returns the recorded migration version, 0 if none.
func (m *Migrator) Version(ctx context.Context, db *gorm.DB) (int, error) {
	version, _, err := database.GetMetaInt(ctx, db, legacyMigrationMeta)
	return version, err
}

func (m *Migrator) migrate(ctx context.Context, db *gorm.DB) (MigrationReport, error) {
	var report MigrationReport

	version, err := m.Version(ctx, db)
	if err != nil {
		return report, fmt.Errorf("error checking migration version: %w", err)
	}
	if version >= LegacyMigrationVersion {
		report.AlreadyDone = true
		return report, nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	sessions, err := database.CountSessionRecords(ctx, db)
	if err != nil {
		return report, err
	}
	histories, err := database.CountHistoryRecords(ctx, db)
	if err != nil {
		return report, err
	}
	if sessions > 0 || histories > 0 {
		report.Skipped = "structured data present"
		return report, m.markDone(ctx, db)
	}

	msgs := m.readLegacySession(ctx)
	entries := m.readLegacyHistory(ctx)

	err = db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if len(msgs) > 0 {
			b, err := json.Marshal(msgs)
			if err != nil {
				return fmt.Errorf("could not marshal legacy session: %w", err)
			}
			if err := database.UpsertSessionRecord(ctx, txn, b); err != nil {
				return err
			}
		}

		records := make([]database.HistoryRecord, 0, len(entries))
		for _, entry := range entries {
			record, err := historyRecordFromEntry(entry)
			if err != nil {
				return err
			}
			records = append(records, record)
		}
		if err := database.UpsertHistoryRecords(ctx, txn, records); err != nil {
			return err
		}

		return database.SetMetaInt(ctx, txn, legacyMigrationMeta, LegacyMigrationVersion)
	})
	if err != nil {
		m.logger.Error("legacy migration transaction failed, leaving legacy data in place", "error", err)
		report.Skipped = "transaction failed"
		if markErr := m.markDone(ctx, db); markErr != nil {
			return report, errors.Join(fmt.Errorf("%w: %w", ErrTransactionFailure, err), markErr)
		}
		return report, nil
	}

	report.SessionMessages = len(msgs)
	report.HistoryEntries = len(entries)
	if len(msgs) == 0 && len(entries) == 0 {
		report.Skipped = "no legacy data"
		return report, nil
	}

	report.Migrated = true
	for _, key := range []string{LegacySessionKey, LegacyHistoryKey} {
		if err := m.legacy.Delete(ctx, key); err != nil {
			m.logger.Warn("error deleting migrated legacy key", "key", key, "error", err)
		}
	}
	return report, nil
}

func (m *Migrator) markDone(ctx context.Context, db *gorm.DB) error {
	if err := database.SetMetaInt(ctx, db, legacyMigrationMeta, LegacyMigrationVersion); err != nil {
		return fmt.Errorf("error recording migration version: %w", err)
	}
	return nil
}

func (m *Migrator) readLegacySession(ctx context.Context) []models.Message {
	data, err := readBlob(ctx, m.legacy, LegacySessionKey)
	if err != nil {
		m.logger.Warn("error reading legacy session, treating as empty", "error", err)
		return nil
	}

	msgs, err := decodeSession(data, m.logger, LegacySessionKey)
	if err != nil {
		m.logger.Warn("malformed legacy session, treating as empty", "error", err)
		return nil
	}
	return msgs
}

func (m *Migrator) readLegacyHistory(ctx context.Context) []models.HistoryEntry {
	data, err := readBlob(ctx, m.legacy, LegacyHistoryKey)
	if err != nil {
		m.logger.Warn("error reading legacy history, treating as empty", "error", err)
		return nil
	}

	entries, err := decodeHistory(data, m.logger, LegacyHistoryKey)
	if err != nil {
		m.logger.Warn("malformed legacy history, treating as empty", "error", err)
		return nil
	}
	return entries
}
