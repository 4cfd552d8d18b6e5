// Package store persists locator values. The file backend keeps one
// properties file per namespace. The Postgres and SQLite backends keep a
// locator table and an audit table of every change.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// ErrInvalidNamespace is returned for namespaces that cannot be mapped to a file name.
var ErrInvalidNamespace = errors.New("invalid locator namespace")

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

func validateNamespace(ns string) error {
	if !namespacePattern.MatchString(ns) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	return nil
}

// Store is a locator.Store that can also enumerate a namespace.
type Store interface {
	locator.Store
	List(ctx context.Context, namespace string) (map[string]string, error)
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open builds the store selected by cfg. The returned func releases any
// resources held by the store.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, func(), error) {
	switch cfg.Type {
	case config.StoreTypeFile, "":
		fs, err := NewFileStore(cfg.Dir, logger)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil

	case config.StoreTypePostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		ps, err := NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if cfg.Postgres.EnsureSchema {
			if err := ps.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return ps, pool.Close, nil

	case config.StoreTypeSQLite:
		ss, err := OpenSQLite(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return ss, func() {
			if err := ss.Close(); err != nil {
				ss.log.Warn("Failed to close sqlite store.", zap.Error(err))
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store type %q", cfg.Type)
	}
}
