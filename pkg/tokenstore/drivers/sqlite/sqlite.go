// Package sqlite is a durable tokenstore.Medium backed by a single sqlite
// file. Call ApplyMigrations once after Open.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
	_ "modernc.org/sqlite"
)

type Medium struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

// Open opens (creating if needed) the database at dsn.
func Open(dsn string) (*Medium, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One connection keeps PRAGMAs and writes on the same handle.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Medium{db: db, dsn: dsn, now: time.Now}, nil
}

func (m *Medium) Close() error { return m.db.Close() }

func (m *Medium) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *Medium) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := m.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return "", mapNotFound(err)
	}
	return v, nil
}

func (m *Medium) Set(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, m.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set %s: %w", key, err)
	}
	return nil
}

func (m *Medium) Delete(ctx context.Context, keys ...string) error {
	return m.WithTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
				return fmt.Errorf("sqlite: delete %s: %w", k, err)
			}
		}
		return nil
	})
}

// UpdatedAt returns when key was last written.
func (m *Medium) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var t time.Time
	err := m.db.QueryRowContext(ctx, `SELECT updated_at FROM kv WHERE key = ?`, key).Scan(&t)
	if err != nil {
		return time.Time{}, mapNotFound(err)
	}
	return t, nil
}

// WithTx executes fn within a transaction, committing on a nil return.
func (m *Medium) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return tokenstore.ErrNotFound
	}
	return err
}
