// ABOUTME: Remote boundary contract used by the sync engine
// ABOUTME: Defines the Remote interface and the RemoteError wrapper

package syncer

import (
	"context"
	"fmt"

	"github.com/2389/snipsync/internal/store"
)

// Remote is the external system records are synced to.
// Push either accepts the record or fails; there is no conflict resolution.
// Pushing the same record twice must be harmless.
type Remote interface {
	Push(ctx context.Context, rec *store.Record) error
}

// RemoteFunc adapts a function to the Remote interface.
type RemoteFunc func(ctx context.Context, rec *store.Record) error

// Push calls f.
func (f RemoteFunc) Push(ctx context.Context, rec *store.Record) error {
	return f(ctx, rec)
}

// RemoteError records a failed push of one record.
type RemoteError struct {
	RecordID string
	Err      error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("pushing record %s: %v", e.RecordID, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
