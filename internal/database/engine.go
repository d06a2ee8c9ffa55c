package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrOpenFailure = errors.New("storage engine unavailable")

// Opener creates and migrates a database handle.
type Opener func(ctx context.Context) (*gorm.DB, error)

// Engine memoizes a single database handle for the lifetime of the process.
// Concurrent first callers share one open attempt. A failed attempt is not
// cached, so the next call tries again.
type Engine struct {
	open   Opener
	logger *slog.Logger
	group  singleflight.Group

	mu sync.Mutex
	db *gorm.DB
}

func NewEngine(path string, logger *slog.Logger) *Engine {
	return NewEngineWithOpener(SqliteOpener(path, logger), logger)
}

// NewEngineWithOpener uses open in place of the SQLite opener. A nil logger
// means slog.Default().
func NewEngineWithOpener(open Opener, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{open: open, logger: logger}
}

// SqliteOpener opens the database file at path, creating its directory, and
// brings the schema up to date.
func SqliteOpener(path string, logger *slog.Logger) Opener {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context) (*gorm.DB, error) {
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}

		dsn := path + "?_busy_timeout=5000&_journal_mode=WAL"
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := GetMigrator(db.WithContext(ctx), logger).Migrate(); err != nil {
			closeDB(db)
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		return db, nil
	}
}

func (e *Engine) Open(ctx context.Context) (*gorm.DB, error) {
	if db := e.current(); db != nil {
		return db, nil
	}

	// The shared attempt must not be cut short by whichever caller started it.
	openCtx := context.WithoutCancel(ctx)

	res, err, _ := e.group.Do("open", func() (any, error) {
		if db := e.current(); db != nil {
			return db, nil
		}

		db, err := e.open(openCtx)
		if err != nil {
			e.logger.Warn("error opening storage engine", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrOpenFailure, err)
		}

		e.mu.Lock()
		e.db = db
		e.mu.Unlock()

		e.logger.Info("storage engine opened")
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*gorm.DB), nil
}

// Available reports whether a handle has already been opened.
func (e *Engine) Available() bool {
	return e.current() != nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		return nil
	}

	sqlDB, err := e.db.DB()
	e.db = nil
	if err != nil {
		return fmt.Errorf("error getting sql db: %w", err)
	}
	return sqlDB.Close()
}

func (e *Engine) current() *gorm.DB {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close() //nolint:errcheck
	}
}
