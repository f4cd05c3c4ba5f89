// ABOUTME: Store interface and data types for snipsync persistence
// ABOUTME: Defines the Record struct, sync status values, and the storage errors

package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// SyncStatus tracks whether local changes to a record have reached the remote.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending" // Written locally, not yet pushed
	SyncStatusSynced  SyncStatus = "synced"  // Accepted by the remote
	SyncStatusError   SyncStatus = "error"   // Rejected by the remote, needs attention
)

// Valid reports whether s is one of the known sync states.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusError:
		return true
	}
	return false
}

// Record is a stored snippet.
type Record struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Tag        string     `json:"tag"` // category label, e.g. the snippet language
	CreatedAt  time.Time  `json:"createdAt"`
	ModifiedAt time.Time  `json:"modifiedAt"`
	SyncStatus SyncStatus `json:"syncStatus"`
}

// Clone returns a copy of the record so callers can mutate it freely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// StorageError wraps a failure of the underlying storage engine.
// It is fatal to the operation that produced it, never to the process.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Store defines the interface for record persistence.
//
// Put and PutSynced are the two write paths: Put is the user-facing write
// and always marks the record pending, PutSynced is the post-sync path and
// keeps whatever status the caller set.
type Store interface {
	// Records
	Put(ctx context.Context, rec *Record) (*Record, error)
	PutSynced(ctx context.Context, rec *Record) (*Record, error)
	MarkSynced(ctx context.Context, id string) error
	MarkError(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Record, error)
	GetAll(ctx context.Context) ([]*Record, error)
	GetByStatus(ctx context.Context, status SyncStatus) ([]*Record, error)
	GetByTag(ctx context.Context, tag string) ([]*Record, error)
	GetModifiedSince(ctx context.Context, since time.Time) ([]*Record, error)
	Delete(ctx context.Context, id string) error

	// Last sync marker
	LastSync(ctx context.Context) (time.Time, bool, error)
	SetLastSync(ctx context.Context, t time.Time) error

	// Close releases any resources held by the store
	Close() error
}
