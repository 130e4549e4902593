package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fieldwork/internal/metrics"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed key/value store. Values are JSON documents and
// keys are namespaced by path-style prefixes ("session/", "artifact/",
// "meta/").
type Store struct {
	db      *sql.DB
	metrics *metrics.Collector
}

// Open opens (or creates) the database at dbPath. The collector may be nil.
func Open(dbPath string, collector *metrics.Collector) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db, metrics: collector}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kv_updated ON kv(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		s.metrics.RecordFailure(op, time.Since(start))
		return
	}
	s.metrics.RecordTiming(op, time.Since(start))
}

// Get decodes the record under key into out. Returns ErrNotFound if no
// record exists and ErrCorrupt if the stored value does not decode.
func (s *Store) Get(ctx context.Context, key string, out any) error {
	start := time.Now()

	var value string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	err := row.Scan(&value)
	if err == sql.ErrNoRows {
		s.observe(metrics.OpStoreRead, start, nil)
		return fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		s.observe(metrics.OpStoreRead, start, err)
		slog.Error("store read failed", "key", key, "error", err)
		return fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(value), out); err != nil {
		s.observe(metrics.OpStoreRead, start, err)
		slog.Error("store record does not decode", "key", key, "error", err)
		return fmt.Errorf("get %s: %w: %s", key, ErrCorrupt, err)
	}

	s.observe(metrics.OpStoreRead, start, nil)
	return nil
}

// Put encodes v as JSON and upserts it under key.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	start := time.Now()

	data, err := json.Marshal(v)
	if err != nil {
		s.observe(metrics.OpStoreWrite, start, err)
		return fmt.Errorf("put %s: encode: %w", key, err)
	}

	query := `
	INSERT INTO kv (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	err = retryBusy("put", func() error {
		_, execErr := s.db.ExecContext(ctx, query, key, string(data), time.Now().Unix())
		return execErr
	})
	if err != nil {
		s.observe(metrics.OpStoreWrite, start, err)
		slog.Error("store write failed", "key", key, "error", err)
		return fmt.Errorf("put %s: %w", key, err)
	}

	s.observe(metrics.OpStoreWrite, start, nil)
	return nil
}

// Delete removes the record under key. Deleting an absent key is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := retryBusy("delete", func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return execErr
	})
	if err != nil {
		s.observe(metrics.OpStoreDelete, start, err)
		slog.Error("store delete failed", "key", key, "error", err)
		return fmt.Errorf("delete %s: %w", key, err)
	}

	s.observe(metrics.OpStoreDelete, start, nil)
	return nil
}

// DeletePrefix removes every record whose key starts with prefix and
// returns the number of records removed.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	start := time.Now()

	var rows int64
	err := retryBusy("delete_prefix", func() error {
		result, execErr := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key LIKE ? || '%'`, prefix)
		if execErr != nil {
			return execErr
		}
		rows, execErr = result.RowsAffected()
		return execErr
	})
	if err != nil {
		s.observe(metrics.OpStoreDelete, start, err)
		slog.Error("store prefix delete failed", "prefix", prefix, "error", err)
		return 0, fmt.Errorf("delete prefix %s: %w", prefix, err)
	}

	s.observe(metrics.OpStoreDelete, start, nil)
	return rows, nil
}

// ListKeys returns all keys with the given prefix in lexical order.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		s.observe(metrics.OpStoreList, start, err)
		slog.Error("store list failed", "prefix", prefix, "error", err)
		return nil, fmt.Errorf("list keys %s: %w", prefix, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close key rows", "error", closeErr)
		}
	}()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			s.observe(metrics.OpStoreList, start, err)
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		s.observe(metrics.OpStoreList, start, err)
		return nil, fmt.Errorf("iterate keys %s: %w", prefix, err)
	}

	s.observe(metrics.OpStoreList, start, nil)
	return keys, nil
}
