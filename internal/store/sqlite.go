// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides record persistence with versioned, idempotent schema upgrades

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SchemaVersion is the on-disk layout version this build writes.
const SchemaVersion = 2

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const lastSyncKey = "last_sync_time"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// upgradeStep moves the schema to version `to`. Steps must be idempotent:
// the index step is re-run on every open.
type upgradeStep struct {
	to    int
	name  string
	apply string
}

var upgradeSteps = []upgradeStep{
	{
		to:   1,
		name: "create tables",
		apply: `
			CREATE TABLE IF NOT EXISTS records (
				id          TEXT PRIMARY KEY,
				content     TEXT NOT NULL,
				tag         TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL,
				modified_at TEXT NOT NULL,
				sync_status TEXT NOT NULL DEFAULT 'pending',

				CHECK (sync_status IN ('pending', 'synced', 'error'))
			);

			CREATE TABLE IF NOT EXISTS meta (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
		`,
	},
	{
		to:   2,
		name: "create indexes",
		apply: `
			CREATE INDEX IF NOT EXISTS idx_records_tag ON records(tag);
			CREATE INDEX IF NOT EXISTS idx_records_modified ON records(modified_at);
			CREATE INDEX IF NOT EXISTS idx_records_sync_status ON records(sync_status);
		`,
	},
}

// NewSQLiteStore opens (or creates) a SQLite store at the given path.
// The schema is upgraded to SchemaVersion if the file is older.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, storageErr("open", fmt.Errorf("creating database directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open", fmt.Errorf("opening database: %w", err))
	}

	// Every connection to :memory: is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, storageErr("open", fmt.Errorf("enabling WAL mode: %w", err))
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, storageErr("open", fmt.Errorf("setting busy timeout: %w", err))
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.upgrade(); err != nil {
		db.Close()
		return nil, storageErr("upgrade", err)
	}

	logger.Info("SQLite store initialized", "path", path, "schema_version", SchemaVersion)
	return s, nil
}

// upgrade applies every step newer than the on-disk version, then re-runs
// the index step so a database whose indexes were dropped is repaired.
func (s *SQLiteStore) upgrade() error {
	var onDisk int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&onDisk); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if onDisk > SchemaVersion {
		s.logger.Warn("database schema is newer than this build", "on_disk", onDisk, "supported", SchemaVersion)
	}

	for _, step := range upgradeSteps {
		if step.to <= onDisk && step.to != SchemaVersion {
			continue
		}
		if _, err := s.db.Exec(step.apply); err != nil {
			return fmt.Errorf("applying %q: %w", step.name, err)
		}
		if step.to > onDisk {
			s.logger.Info("applied schema upgrade", "version", step.to, "step", step.name)
		}
	}

	if onDisk < SchemaVersion {
		// PRAGMA does not accept bound parameters.
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("writing schema version: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the version marker currently stored on disk.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, storageErr("schema version", err)
	}
	return v, nil
}

// DB exposes the underlying handle so sibling tables (the response cache)
// can live in the same file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Put inserts or replaces a record and marks it pending.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) (*Record, error) {
	return s.write(ctx, rec, true)
}

// PutSynced inserts or replaces a record keeping rec.SyncStatus as given.
// This is the post-sync write path; it must not be used for user edits.
func (s *SQLiteStore) PutSynced(ctx context.Context, rec *Record) (*Record, error) {
	return s.write(ctx, rec, false)
}

func (s *SQLiteStore) write(ctx context.Context, in *Record, markPending bool) (*Record, error) {
	if in == nil {
		return nil, errors.New("nil record")
	}
	rec := in.Clone()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if markPending || rec.SyncStatus == "" {
		rec.SyncStatus = SyncStatusPending
	}
	if !rec.SyncStatus.Valid() {
		return nil, fmt.Errorf("invalid sync status %q", rec.SyncStatus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("put", err)
	}
	defer tx.Rollback()

	// created_at is immutable once a row exists
	var existing string
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM records WHERE id = ?`, rec.ID).Scan(&existing)
	switch {
	case err == nil:
		rec.CreatedAt, err = time.Parse(timeFormat, existing)
		if err != nil {
			return nil, storageErr("put", fmt.Errorf("parsing created_at: %w", err))
		}
	case errors.Is(err, sql.ErrNoRows):
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = s.now()
		}
	default:
		return nil, storageErr("put", err)
	}

	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ModifiedAt = s.now()
	if rec.ModifiedAt.Before(rec.CreatedAt) {
		rec.ModifiedAt = rec.CreatedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (id, content, tag, created_at, modified_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			tag = excluded.tag,
			modified_at = excluded.modified_at,
			sync_status = excluded.sync_status
	`,
		rec.ID,
		rec.Content,
		rec.Tag,
		rec.CreatedAt.Format(timeFormat),
		rec.ModifiedAt.Format(timeFormat),
		string(rec.SyncStatus),
	)
	if err != nil {
		return nil, storageErr("put", fmt.Errorf("upserting record: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, storageErr("put", err)
	}

	s.logger.Debug("stored record", "id", rec.ID, "sync_status", rec.SyncStatus)
	return rec, nil
}

// MarkSynced flips a record to synced through the post-sync path.
// A record that no longer exists is not an error.
func (s *SQLiteStore) MarkSynced(ctx context.Context, id string) error {
	return s.markStatus(ctx, id, SyncStatusSynced)
}

// MarkError flags a record the remote refused.
func (s *SQLiteStore) MarkError(ctx context.Context, id string) error {
	return s.markStatus(ctx, id, SyncStatusError)
}

func (s *SQLiteStore) markStatus(ctx context.Context, id string, status SyncStatus) error {
	rec, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.SyncStatus = status
	_, err = s.PutSynced(ctx, rec)
	return err
}

const selectRecord = `SELECT id, content, tag, created_at, modified_at, sync_status FROM records`

// Get retrieves a record by ID.
// Returns ErrNotFound if the record doesn't exist.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return rec, nil
}

// GetAll returns every record. Order is unspecified.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]*Record, error) {
	return s.query(ctx, "get all", selectRecord)
}

// GetByStatus returns all records with the given sync status.
func (s *SQLiteStore) GetByStatus(ctx context.Context, status SyncStatus) ([]*Record, error) {
	return s.query(ctx, "get by status", selectRecord+` WHERE sync_status = ?`, string(status))
}

// GetByTag returns all records with the given tag.
func (s *SQLiteStore) GetByTag(ctx context.Context, tag string) ([]*Record, error) {
	return s.query(ctx, "get by tag", selectRecord+` WHERE tag = ?`, tag)
}

// GetModifiedSince returns records modified at or after since, oldest first.
func (s *SQLiteStore) GetModifiedSince(ctx context.Context, since time.Time) ([]*Record, error) {
	return s.query(ctx, "get modified since",
		selectRecord+` WHERE modified_at >= ? ORDER BY modified_at ASC`,
		since.UTC().Format(timeFormat))
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return storageErr("delete", err)
	}
	s.logger.Debug("deleted record", "id", id)
	return nil
}

// LastSync returns the persisted last successful sync time.
// ok is false if no sync has ever succeeded.
func (s *SQLiteStore) LastSync(ctx context.Context) (t time.Time, ok bool, err error) {
	var raw string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, lastSyncKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storageErr("last sync", err)
	}
	t, err = time.Parse(timeFormat, raw)
	if err != nil {
		return time.Time{}, false, storageErr("last sync", fmt.Errorf("parsing %q: %w", raw, err))
	}
	return t, true, nil
}

// SetLastSync persists the last successful sync time.
func (s *SQLiteStore) SetLastSync(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, lastSyncKey, t.UTC().Format(timeFormat))
	return storageErr("set last sync", err)
}

func (s *SQLiteStore) query(ctx context.Context, op, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var createdAt, modifiedAt, status string
	if err := row.Scan(&rec.ID, &rec.Content, &rec.Tag, &createdAt, &modifiedAt, &status); err != nil {
		return nil, err
	}

	var err error
	rec.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.ModifiedAt, err = time.Parse(timeFormat, modifiedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing modified_at: %w", err)
	}
	rec.SyncStatus = SyncStatus(status)
	return &rec, nil
}
