package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so it can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS locators (
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    comment    TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (namespace, key)
);
CREATE TABLE IF NOT EXISTS locator_changes (
    id         UUID PRIMARY KEY,
    namespace  TEXT NOT NULL,
    key        TEXT NOT NULL,
    old_value  TEXT,
    new_value  TEXT NOT NULL,
    comment    TEXT NOT NULL DEFAULT '',
    changed_at TIMESTAMPTZ NOT NULL
);
`

const (
	sqlGetLocator = `SELECT value FROM locators WHERE namespace = $1 AND key = $2`

	sqlListLocators = `SELECT key, value FROM locators WHERE namespace = $1 ORDER BY key`

	sqlLockLocator = `SELECT value FROM locators WHERE namespace = $1 AND key = $2 FOR UPDATE`

	sqlUpsertLocator = `
        INSERT INTO locators (namespace, key, value, comment, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (namespace, key) DO UPDATE SET
            value = EXCLUDED.value,
            comment = EXCLUDED.comment,
            updated_at = EXCLUDED.updated_at`

	sqlInsertChange = `
        INSERT INTO locator_changes (id, namespace, key, old_value, new_value, comment, changed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// PostgresStore keeps locators in PostgreSQL and records every change.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres creates a store and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	err := s.pool.QueryRow(ctx, sqlGetLocator, namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get locator %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) List(ctx context.Context, namespace string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, sqlListLocators, namespace)
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

// Set upserts the locator and appends an audit row, in one transaction. The
// existing row is locked so concurrent corrections are applied in order.
func (s *PostgresStore) Set(ctx context.Context, namespace, key, value, comment string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	var old *string
	var current string
	switch err := tx.QueryRow(ctx, sqlLockLocator, namespace, key).Scan(&current); {
	case err == nil:
		old = &current
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return fmt.Errorf("failed to lock locator %s/%s: %w", namespace, key, err)
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, sqlUpsertLocator, namespace, key, value, comment, now); err != nil {
		return fmt.Errorf("failed to upsert locator %s/%s: %w", namespace, key, err)
	}
	if _, err := tx.Exec(ctx, sqlInsertChange, uuid.New(), namespace, key, old, value, comment, now); err != nil {
		return fmt.Errorf("failed to record locator change: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Locator stored", zap.String("namespace", namespace), zap.String("key", key))
	return nil
}
