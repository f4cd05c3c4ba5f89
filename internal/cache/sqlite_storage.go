// ABOUTME: SQLite implementation of cache Storage
// ABOUTME: Shares the daemon database file; headers are stored as JSON

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const storedAtFormat = "2006-01-02T15:04:05.000000000Z"

const cacheSchema = `
	CREATE TABLE IF NOT EXISTS cache_entries (
		namespace TEXT NOT NULL,
		key       TEXT NOT NULL,
		status    INTEGER NOT NULL,
		header    TEXT NOT NULL,
		body      BLOB NOT NULL,
		url       TEXT NOT NULL DEFAULT '',
		stored_at TEXT NOT NULL,

		PRIMARY KEY (namespace, key)
	);
`

// SQLiteStorage stores responses in the cache_entries table.
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage creates the cache table in db if needed. db is usually
// the record store's handle; the caller keeps ownership of it.
func NewSQLiteStorage(ctx context.Context, db *sql.DB) (*SQLiteStorage, error) {
	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		return nil, fmt.Errorf("creating cache table: %w", err)
	}
	return &SQLiteStorage{db: db, now: time.Now}, nil
}

func (s *SQLiteStorage) Get(ctx context.Context, namespace, key string) (*Response, bool, error) {
	var (
		resp     Response
		header   string
		storedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT status, header, body, url, stored_at
		FROM cache_entries WHERE namespace = ? AND key = ?
	`, namespace, key).Scan(&resp.StatusCode, &header, &resp.Body, &resp.URL, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(header), &resp.Header); err != nil {
		return nil, false, fmt.Errorf("decoding cached header: %w", err)
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.StoredAt, _ = time.Parse(storedAtFormat, storedAt)
	resp.Source = SourceCache
	return &resp, true, nil
}

func (s *SQLiteStorage) Put(ctx context.Context, namespace, key string, resp *Response) error {
	return s.put(ctx, s.db, namespace, key, resp)
}

func (s *SQLiteStorage) PutAll(ctx context.Context, namespace string, entries map[string]*Response) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, resp := range entries {
		if err := s.put(ctx, tx, namespace, key, resp); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache entries: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStorage) put(ctx context.Context, ex execer, namespace, key string, resp *Response) error {
	header, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("encoding header: %w", err)
	}
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO cache_entries (namespace, key, status, header, body, url, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			status = excluded.status,
			header = excluded.header,
			body = excluded.body,
			url = excluded.url,
			stored_at = excluded.stored_at
	`, namespace, key, resp.StatusCode, string(header), body, resp.URL,
		s.now().UTC().Format(storedAtFormat))
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Keys(ctx context.Context, namespace string) ([]string, error) {
	return s.strings(ctx, `SELECT key FROM cache_entries WHERE namespace = ? ORDER BY key`, namespace)
}

func (s *SQLiteStorage) Namespaces(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT namespace FROM cache_entries ORDER BY namespace`)
}

func (s *SQLiteStorage) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("deleting namespace %s: %w", namespace, err)
	}
	return nil
}

func (s *SQLiteStorage) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

var _ Storage = (*SQLiteStorage)(nil)
