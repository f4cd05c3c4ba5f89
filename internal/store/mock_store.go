// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject storage failures

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	records  map[string]*Record // keyed by record ID
	lastSync *time.Time

	// FailOn makes the named operation ("put", "get", "get by status",
	// "set last sync", ...) return a StorageError. Tests set it directly.
	FailOn map[string]error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		records: make(map[string]*Record),
		FailOn:  make(map[string]error),
	}
}

func (m *MockStore) fail(op string) error {
	if err, ok := m.FailOn[op]; ok {
		return storageErr(op, err)
	}
	return nil
}

// Put stores a record and marks it pending.
func (m *MockStore) Put(ctx context.Context, rec *Record) (*Record, error) {
	return m.write(rec, true)
}

// PutSynced stores a record keeping its sync status.
func (m *MockStore) PutSynced(ctx context.Context, rec *Record) (*Record, error) {
	return m.write(rec, false)
}

func (m *MockStore) write(in *Record, markPending bool) (*Record, error) {
	if in == nil {
		return nil, errors.New("nil record")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("put"); err != nil {
		return nil, err
	}

	// Make a copy to avoid external modification
	rec := in.Clone()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if markPending || rec.SyncStatus == "" {
		rec.SyncStatus = SyncStatusPending
	}
	now := time.Now().UTC()
	if existing, ok := m.records[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.ModifiedAt = now
	if rec.ModifiedAt.Before(rec.CreatedAt) {
		rec.ModifiedAt = rec.CreatedAt
	}

	m.records[rec.ID] = rec
	return rec.Clone(), nil
}

// MarkSynced sets a record's status to synced.
func (m *MockStore) MarkSynced(ctx context.Context, id string) error {
	return m.markStatus(ctx, id, SyncStatusSynced)
}

// MarkError sets a record's status to error.
func (m *MockStore) MarkError(ctx context.Context, id string) error {
	return m.markStatus(ctx, id, SyncStatusError)
}

func (m *MockStore) markStatus(ctx context.Context, id string, status SyncStatus) error {
	rec, err := m.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.SyncStatus = status
	_, err = m.PutSynced(ctx, rec)
	return err
}

// Get retrieves a record by ID.
func (m *MockStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail("get"); err != nil {
		return nil, err
	}
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// GetAll returns every record.
func (m *MockStore) GetAll(ctx context.Context) ([]*Record, error) {
	return m.filter("get all", func(*Record) bool { return true })
}

// GetByStatus returns records with the given status.
func (m *MockStore) GetByStatus(ctx context.Context, status SyncStatus) ([]*Record, error) {
	return m.filter("get by status", func(r *Record) bool { return r.SyncStatus == status })
}

// GetByTag returns records with the given tag.
func (m *MockStore) GetByTag(ctx context.Context, tag string) ([]*Record, error) {
	return m.filter("get by tag", func(r *Record) bool { return r.Tag == tag })
}

// GetModifiedSince returns records modified at or after since, oldest first.
func (m *MockStore) GetModifiedSince(ctx context.Context, since time.Time) ([]*Record, error) {
	out, err := m.filter("get modified since", func(r *Record) bool { return !r.ModifiedAt.Before(since) })
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModifiedAt.Before(out[j].ModifiedAt) })
	return out, nil
}

func (m *MockStore) filter(op string, keep func(*Record) bool) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail(op); err != nil {
		return nil, err
	}
	var out []*Record
	for _, rec := range m.records {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	// Stable order keeps test expectations deterministic
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a record.
func (m *MockStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("delete"); err != nil {
		return err
	}
	delete(m.records, id)
	return nil
}

// LastSync returns the last sync marker.
func (m *MockStore) LastSync(ctx context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastSync == nil {
		return time.Time{}, false, nil
	}
	return *m.lastSync, true, nil
}

// SetLastSync sets the last sync marker.
func (m *MockStore) SetLastSync(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("set last sync"); err != nil {
		return err
	}
	t = t.UTC()
	m.lastSync = &t
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Compile-time interface checks
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
