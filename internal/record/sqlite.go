package record

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is the production Store: a local single-file database.
// Configured with WAL mode for concurrent reads and a single writer
// connection to avoid SQLITE_BUSY errors.
type SQLite struct {
	db *sql.DB

	mu       sync.Mutex
	watchers []ChangeFunc
}

// OpenSQLite creates or opens a database at the given path and applies
// pragmas and schema. Idempotent: safe to call on an existing file.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time; keep a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Read returns the value and revision under key, or (nil, 0, nil) if absent.
func (s *SQLite) Read(ctx context.Context, key string) ([]byte, Revision, error) {
	var value string
	var rev int64
	err := s.db.QueryRowContext(ctx,
		"SELECT value, revision FROM records WHERE key = ?", key,
	).Scan(&value, &rev)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read %q: %w", key, err)
	}
	return []byte(value), Revision(rev), nil
}

// Replace writes value under key after validating rev. On a failed write it
// purges the non-essential analytics keys and retries once before giving up.
func (s *SQLite) Replace(ctx context.Context, key string, value []byte, rev Revision) (Revision, error) {
	next, err := s.replaceOnce(ctx, key, value, rev)
	if err != nil && err != ErrRevisionConflict {
		// Best-effort space reclaim, then a single retry. Conflicts are
		// not retried here: the caller must re-read first.
		slog.Warn("record write failed, purging non-essential keys",
			"key", key,
			"error", err,
		)
		s.purge(ctx)
		next, err = s.replaceOnce(ctx, key, value, rev)
	}
	if err != nil {
		return 0, err
	}
	s.notify(key)
	return next, nil
}

func (s *SQLite) replaceOnce(ctx context.Context, key string, value []byte, rev Revision) (Revision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace %q: %w", key, err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		"SELECT revision FROM records WHERE key = ?", key,
	).Scan(&current)
	if err == sql.ErrNoRows {
		current = 0
	} else if err != nil {
		return 0, fmt.Errorf("read revision %q: %w", key, err)
	}
	if Revision(current) != rev {
		return 0, ErrRevisionConflict
	}

	next := current + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (key, value, revision, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`, key, string(value), next, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("write %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %q: %w", key, err)
	}
	return Revision(next), nil
}

// purge drops the purgeable analytics keys. Errors are logged and ignored;
// losing these keys is acceptable by contract.
func (s *SQLite) purge(ctx context.Context) {
	for _, key := range PurgeableKeys {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE key = ?", key); err != nil {
			slog.Warn("purge failed", "key", key, "error", err)
		}
	}
}

// Delete removes key. Absent keys are a no-op and notify nothing.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(key)
	}
	return nil
}

// Keys returns all keys with the given prefix, sorted.
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM records WHERE key LIKE ? || '%' ORDER BY key", prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Watch registers a change handler.
func (s *SQLite) Watch(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *SQLite) notify(key string) {
	s.mu.Lock()
	watchers := append([]ChangeFunc(nil), s.watchers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(key)
	}
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
