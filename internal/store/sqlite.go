package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS locators (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    comment    TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    PRIMARY KEY (namespace, key)
)`,
	`CREATE TABLE IF NOT EXISTS locator_changes (
    id         TEXT PRIMARY KEY,
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    old_value  TEXT,
    new_value  TEXT NOT NULL,
    comment    TEXT NOT NULL DEFAULT '',
    changed_at TEXT NOT NULL
)`,
}

const (
	sqliteGetLocator   = `SELECT value FROM locators WHERE namespace = ? AND key = ?`
	sqliteListLocators = `SELECT key, value FROM locators WHERE namespace = ? ORDER BY key`

	sqliteUpsertLocator = `
        INSERT INTO locators (namespace, key, value, comment, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (namespace, key) DO UPDATE SET
            value = excluded.value,
            comment = excluded.comment,
            updated_at = excluded.updated_at`

	sqliteInsertChange = `
        INSERT INTO locator_changes (id, namespace, key, old_value, new_value, comment, changed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// SQLiteStore keeps every namespace in one local database file, with the same
// audit trail as PostgresStore.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand sqlite path %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", expanded, err)
	}

	// Other processes may hold the write lock while healing the same file.
	db, err := sql.Open("sqlite", expanded+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewSQLite(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an open database and creates the tables if needed.
func NewSQLite(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db, log: logger.Named("store")}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, sqliteGetLocator, namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get locator %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) List(ctx context.Context, namespace string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListLocators, namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list locators: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan locator row: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locator rows: %w", err)
	}
	return out, nil
}

// Set upserts the locator and appends an audit row in one transaction.
func (s *SQLiteStore) Set(ctx context.Context, namespace, key, value, comment string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	var old *string
	var current string
	switch err := tx.QueryRowContext(ctx, sqliteGetLocator, namespace, key).Scan(&current); {
	case err == nil:
		old = &current
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("failed to read locator %s/%s: %w", namespace, key, err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, sqliteUpsertLocator, namespace, key, value, comment, now); err != nil {
		return fmt.Errorf("failed to upsert locator %s/%s: %w", namespace, key, err)
	}
	if _, err := tx.ExecContext(ctx, sqliteInsertChange, uuid.NewString(), namespace, key, old, value, comment, now); err != nil {
		return fmt.Errorf("failed to record locator change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Locator stored", zap.String("namespace", namespace), zap.String("key", key))
	return nil
}
