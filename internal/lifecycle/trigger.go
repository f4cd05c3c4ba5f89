// ABOUTME: Trigger that starts bulk sync runs from connectivity and timer events
// ABOUTME: Triggers that arrive while offline or mid-run are dropped, never queued

package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2389/snipsync/internal/syncer"
)

// Syncer is the part of the sync engine a trigger drives.
type Syncer interface {
	SyncAll(ctx context.Context) (syncer.Result, error)
}

// Trigger runs SyncAll on behalf of automatic sources.
type Trigger struct {
	engine Syncer
	conn   *Connectivity
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool // set by Wait; guards wg.Add against a concurrent Wait
	wg      sync.WaitGroup
}

// NewTrigger creates a trigger. conn may be nil, in which case the
// trigger assumes it is always online.
func NewTrigger(engine Syncer, conn *Connectivity, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		engine: engine,
		conn:   conn,
		logger: logger.With("component", "trigger"),
	}
}

// Fire runs one bulk sync. It reports false when the trigger was skipped
// or dropped because a run was already live.
func (t *Trigger) Fire(ctx context.Context, reason string) (syncer.Result, bool) {
	if t.conn != nil && !t.conn.Online() {
		t.logger.Debug("skipping sync while offline", "reason", reason)
		return syncer.Result{}, false
	}

	res, err := t.engine.SyncAll(ctx)
	if err != nil {
		t.logger.Error("triggered sync failed", "reason", reason, "error", err)
		return res, true
	}
	if res.Outcome == syncer.OutcomeAlreadySyncing {
		t.logger.Debug("sync already running, trigger dropped", "reason", reason)
		return res, false
	}
	t.logger.Info("triggered sync finished", "reason", reason,
		"outcome", res.Outcome, "successes", res.Successes, "errors", res.Errors)
	return res, true
}

// WatchConnectivity fires a sync every time conn comes back online.
func (t *Trigger) WatchConnectivity(ctx context.Context, conn *Connectivity) {
	conn.OnChange(func(online bool) {
		if !online || ctx.Err() != nil {
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.stopped {
			return
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.Fire(ctx, "connectivity restored")
		}()
	})
}

// Wait blocks until syncs started by WatchConnectivity return. Once Wait
// has been called, connectivity changes no longer start syncs.
func (t *Trigger) Wait() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.wg.Wait()
}
