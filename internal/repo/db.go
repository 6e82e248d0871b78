// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), schema migrations, and the bounded retry helper
// used at the persistence boundary.
package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
)

// ErrNotFound indicates that the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate indicates a unique-constraint violation on insert.
var ErrDuplicate = errors.New("duplicate")

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs. Both
// the bot process and the claim web service share one database file; WAL mode
// plus a busy timeout lets the two processes interleave writers safely.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the four durable relations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Contest{},
		&domain.PrizeSlot{},
		&domain.PrizeClaim{},
		&domain.GiveawaySnapshot{},
	)
}

// isDuplicateErr detects unique-constraint violations across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// isTransientErr reports whether an error is worth retrying: lock contention
// between the two processes or a connectivity hiccup. Validation and
// constraint errors are permanent and never retried.
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate) || isDuplicateErr(err) {
		return false
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "database is locked") ||
		strings.Contains(low, "busy") ||
		strings.Contains(low, "connection") ||
		strings.Contains(low, "i/o")
}

// WithRetry runs fn up to attempts times, sleeping delay between tries, but
// only while the failure looks transient. The last error is returned verbatim
// so callers can still type-check it.
func WithRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isTransientErr(err) || i == attempts-1 {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
