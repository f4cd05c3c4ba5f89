// ABOUTME: Postgres remote that upserts pushed records into a shared table
// ABOUTME: Lets several devices sync into one database without an HTTP tier

package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/2389/snipsync/internal/store"
	"github.com/2389/snipsync/internal/syncer"
)

// ErrMissingID is returned for a record pushed without an id.
var ErrMissingID = errors.New("record has no id")

const (
	defaultPostgresTable     = "snippets"
	postgresOperationTimeout = 5 * time.Second
)

var sqlOpenFunc = sql.Open

// PostgresRemote writes records to a Postgres table. The table is created
// on first use.
type PostgresRemote struct {
	dsn       string
	tableName string
	openDB    func(driverName, dataSourceName string) (*sql.DB, error)

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresRemote returns a remote for dsn. The connection is opened
// lazily so a daemon can start while the database is unreachable.
func NewPostgresRemote(dsn, tableName string) (*PostgresRemote, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	tableName = strings.TrimSpace(tableName)
	if tableName == "" {
		tableName = defaultPostgresTable
	}
	return &PostgresRemote{
		dsn:       dsn,
		tableName: tableName,
		openDB:    sqlOpenFunc,
	}, nil
}

func (p *PostgresRemote) ensureReady() error {
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				content TEXT NOT NULL,
				tag TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL,
				modified_at TIMESTAMPTZ NOT NULL,
				received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, quoteIdentifier(p.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			p.initErr = err
			return
		}
		p.db = db
	})
	return p.initErr
}

// Push upserts rec. A version older than the stored one is left alone.
func (p *PostgresRemote) Push(ctx context.Context, rec *store.Record) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return ErrMissingID
	}
	if err := p.ensureReady(); err != nil {
		return fmt.Errorf("postgres remote not ready: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, content, tag, created_at, modified_at, received_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			tag = EXCLUDED.tag,
			modified_at = EXCLUDED.modified_at,
			received_at = NOW()
		WHERE %[1]s.modified_at <= EXCLUDED.modified_at`, quoteIdentifier(p.tableName))

	_, err := p.db.ExecContext(ctx, query,
		rec.ID, rec.Content, rec.Tag, rec.CreatedAt.UTC(), rec.ModifiedAt.UTC())
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", rec.ID, err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresRemote) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

var _ syncer.Remote = (*PostgresRemote)(nil)
