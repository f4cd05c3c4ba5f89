// Package store provides durable local storage for snippets using SQLite.
//
// # Records
//
// A Record carries the snippet content, a tag (its category), creation and
// modification times, and a SyncStatus:
//
//   - pending: written locally, waiting for the next sync run
//   - synced:  accepted by the remote
//   - error:   refused by the remote
//
// # Write Paths
//
// There are two ways to write a record and they are not interchangeable:
//
//   - Put: the user-facing write. Always sets SyncStatus to pending.
//   - PutSynced: the post-sync write. Keeps the caller's SyncStatus so a
//     record the sync engine just pushed is not immediately marked dirty.
//
// MarkSynced and MarkError are read-modify-write helpers on top of
// PutSynced. They are not atomic against a concurrent Put of the same id;
// the last write wins.
//
// # Schema
//
// The on-disk layout version lives in PRAGMA user_version. Opening a file
// with an older version applies the missing upgrade steps; the index step
// is re-run on every open and uses IF NOT EXISTS, so it is always safe.
//
//	records(id, content, tag, created_at, modified_at, sync_status)
//	meta(key, value)               -- last_sync_time
//
// Indexes: tag, modified_at, sync_status.
//
// # Error Handling
//
//   - ErrNotFound: Get on a missing id
//   - *StorageError: any driver failure, wraps the cause
//
// # Testing
//
// Use NewMockStore() for unit tests of code that depends on Store. It can
// inject failures per operation through its FailOn map.
//
// Use NewSQLiteStore(":memory:") or a t.TempDir() path for integration tests.
package store
