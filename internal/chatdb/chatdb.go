// Package chatdb persists the active chat transcript and the archive of saved
// chats. Every operation tries the database first and falls back to flat
// blobs when the database cannot be opened or a statement fails. Operations
// never return errors; the Outcome says which path served the call.
package chatdb

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"chatvault/internal/database"
	"chatvault/internal/storage"
	"chatvault/pkg/models"

	"gorm.io/gorm"
)

type ChatDB struct {
	engine   *database.Engine
	migrator *Migrator
	session  *SessionStore
	history  *HistoryStore
	fallback *Fallback

	logger *slog.Logger
	hook   func(op string, outcome Outcome)
}

type Option func(*ChatDB)

func WithLogger(logger *slog.Logger) Option {
	return func(c *ChatDB) {
		c.logger = logger
	}
}

// WithOutcomeHook registers a callback invoked after every operation.
func WithOutcomeHook(hook func(op string, outcome Outcome)) Option {
	return func(c *ChatDB) {
		c.hook = hook
	}
}

// New wires the database engine and the flat store. The flat store holds both
// the legacy blobs consumed by migration and the fallback blobs.
func New(engine *database.Engine, flat storage.KVStore, opts ...Option) *ChatDB {
	c := &ChatDB{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// SQLite allows a single writer.
	writeMu := &sync.Mutex{}

	c.migrator = NewMigrator(flat, writeMu, c.logger)
	c.session = NewSessionStore(writeMu)
	c.history = NewHistoryStore(writeMu, c.logger)
	c.fallback = NewFallback(flat, c.logger)
	return c
}

func (c *ChatDB) GetSessionMessages(ctx context.Context) ([]models.Message, Outcome) {
	return runRead(ctx, c, "get_session_messages", []models.Message{},
		func(db *gorm.DB) ([]models.Message, error) {
			return c.session.Get(ctx, db)
		},
		func() ([]models.Message, error) {
			return c.fallback.GetSession(ctx)
		},
	)
}

func (c *ChatDB) SetSessionMessages(ctx context.Context, msgs []models.Message) Outcome {
	return runWrite(ctx, c, "set_session_messages",
		func(ctx context.Context, db *gorm.DB) error {
			return c.session.Set(ctx, db, msgs)
		},
		func(ctx context.Context) error {
			return c.fallback.SetSession(ctx, msgs)
		},
	)
}

func (c *ChatDB) ClearSessionMessages(ctx context.Context) Outcome {
	return runWrite(ctx, c, "clear_session_messages",
		func(ctx context.Context, db *gorm.DB) error {
			return c.session.Clear(ctx, db)
		},
		func(ctx context.Context) error {
			return c.fallback.SetSession(ctx, nil)
		},
	)
}

func (c *ChatDB) GetAllHistory(ctx context.Context) ([]models.HistoryEntry, Outcome) {
	return runRead(ctx, c, "get_all_history", []models.HistoryEntry{},
		func(db *gorm.DB) ([]models.HistoryEntry, error) {
			return c.history.List(ctx, db)
		},
		func() ([]models.HistoryEntry, error) {
			return c.fallback.ListHistory(ctx)
		},
	)
}

func (c *ChatDB) PutHistoryChat(ctx context.Context, entry models.HistoryEntry) Outcome {
	return runWrite(ctx, c, "put_history_chat",
		func(ctx context.Context, db *gorm.DB) error {
			return c.history.Put(ctx, db, entry)
		},
		func(ctx context.Context) error {
			return c.fallback.PutHistory(ctx, entry)
		},
	)
}

func (c *ChatDB) DeleteHistoryChats(ctx context.Context, ids []string) Outcome {
	if len(ids) == 0 {
		return Outcome{Path: PathPrimary}
	}
	return runWrite(ctx, c, "delete_history_chats",
		func(ctx context.Context, db *gorm.DB) error {
			return c.history.DeleteMany(ctx, db, ids)
		},
		func(ctx context.Context) error {
			return c.fallback.DeleteHistory(ctx, ids)
		},
	)
}

func (c *ChatDB) ClearAllHistory(ctx context.Context) Outcome {
	return runWrite(ctx, c, "clear_all_history",
		func(ctx context.Context, db *gorm.DB) error {
			return c.history.Clear(ctx, db)
		},
		func(ctx context.Context) error {
			return c.fallback.ClearHistory(ctx)
		},
	)
}

type Status struct {
	EngineAvailable  bool   `json:"engine_available"`
	EngineError      string `json:"engine_error,omitempty"`
	MigrationVersion int    `json:"migration_version"`
	SessionStored    bool   `json:"session_stored"`
	HistoryEntries   int64  `json:"history_entries"`
}

// Status opens the engine if needed and reports what the database holds.
func (c *ChatDB) Status(ctx context.Context) Status {
	db, err := c.handle(ctx)
	if err != nil {
		return Status{EngineError: err.Error()}
	}

	status := Status{EngineAvailable: true}

	if status.MigrationVersion, err = c.migrator.Version(ctx, db); err != nil {
		c.logger.Warn("error reading migration version", "error", err)
	}
	if sessions, err := database.CountSessionRecords(ctx, db); err != nil {
		c.logger.Warn("error counting session records", "error", err)
	} else {
		status.SessionStored = sessions > 0
	}
	if status.HistoryEntries, err = database.CountHistoryRecords(ctx, db); err != nil {
		c.logger.Warn("error counting history records", "error", err)
	}
	return status
}

// handle opens the engine and makes sure legacy data has been migrated. A
// migration error is logged and does not stop the caller from using the
// database.
func (c *ChatDB) handle(ctx context.Context) (*gorm.DB, error) {
	db, err := c.engine.Open(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := c.migrator.EnsureMigrated(ctx, db); err != nil {
		c.logger.Warn("legacy migration did not complete", "error", err)
	}
	return db, nil
}

func (c *ChatDB) observe(op string, outcome Outcome) {
	if c.hook != nil {
		c.hook(op, outcome)
	}
}

func runRead[T any](ctx context.Context, c *ChatDB, op string, empty T, primary func(db *gorm.DB) (T, error), fallback func() (T, error)) (T, Outcome) {
	db, err := c.handle(ctx)
	if err == nil {
		var res T
		if res, err = primary(db); err == nil {
			outcome := Outcome{Path: PathPrimary}
			c.observe(op, outcome)
			return res, outcome
		}
	}
	c.logger.Warn("primary storage failed, reading fallback", "op", op, "error", err)

	res, fallbackErr := fallback()
	if fallbackErr != nil {
		c.logger.Error("fallback storage failed", "op", op, "error", fallbackErr)
		outcome := Outcome{Path: PathFailed, Err: errors.Join(err, fallbackErr)}
		c.observe(op, outcome)
		return empty, outcome
	}

	outcome := Outcome{Path: PathFallback, Err: err}
	c.observe(op, outcome)
	return res, outcome
}

// runWrite detaches from the caller's cancellation: a write that has started
// runs to completion.
func runWrite(ctx context.Context, c *ChatDB, op string, primary func(ctx context.Context, db *gorm.DB) error, fallback func(ctx context.Context) error) Outcome {
	ctx = context.WithoutCancel(ctx)

	db, err := c.handle(ctx)
	if err == nil {
		if err = primary(ctx, db); err == nil {
			outcome := Outcome{Path: PathPrimary}
			c.observe(op, outcome)
			return outcome
		}
	}
	c.logger.Warn("primary storage failed, writing fallback", "op", op, "error", err)

	if fallbackErr := fallback(ctx); fallbackErr != nil {
		c.logger.Error("fallback storage failed", "op", op, "error", fallbackErr)
		outcome := Outcome{Path: PathFailed, Err: errors.Join(err, fallbackErr)}
		c.observe(op, outcome)
		return outcome
	}

	outcome := Outcome{Path: PathFallback, Err: err}
	c.observe(op, outcome)
	return outcome
}
