// ABOUTME: Sync engine that drains pending records to the remote one at a time
// ABOUTME: Owns the single live sync session, progress/status events, and the last-sync marker

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/snipsync/internal/store"
)

// Outcome summarises how a sync call ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"       // run finished; check Errors for partial success
	OutcomeNothingToSync  Outcome = "nothing-to-sync" // no pending records
	OutcomeAlreadySyncing Outcome = "already-syncing" // another session is live; nothing was pushed
	OutcomeFailed         Outcome = "failed"          // the run could not proceed
)

// Result is what SyncAll and SyncOne return to callers.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	Message   string  `json:"message"`
	Total     int     `json:"total"`
	Successes int     `json:"successes"`
	Errors    int     `json:"errors"`
}

// Session is one bulk sync run. While the engine holds a session no other
// SyncAll may start.
type Session struct {
	ID        string
	StartedAt time.Time
	Records   []*store.Record

	inFlight  int
	successes int
	errors    int
}

// SessionSnapshot is a read-only view of the live session.
type SessionSnapshot struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	Total     int       `json:"total"`
	InFlight  int       `json:"inFlight"`
	Successes int       `json:"successes"`
	Errors    int       `json:"errors"`
}

// Engine pushes pending records to a Remote.
type Engine struct {
	store  store.Store
	remote Remote
	events *Broadcaster
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	session *Session
}

// NewEngine creates an engine over the given store and remote. Pass nil
// logger for default.
func NewEngine(st store.Store, remote Remote, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		remote: remote,
		events: NewBroadcaster(logger),
		logger: logger.With("component", "syncer"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe returns a channel of sync events. It is closed when ctx is
// cancelled or the engine is closed.
func (e *Engine) Subscribe(ctx context.Context) <-chan Event {
	ch, _ := e.events.Subscribe(ctx)
	return ch
}

// Close releases subscribers. It does not wait for a running session.
func (e *Engine) Close() {
	e.events.Close()
}

// Session reports the live session, if any.
func (e *Engine) Session() (SessionSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if s == nil {
		return SessionSnapshot{}, false
	}
	return SessionSnapshot{
		ID:        s.ID,
		StartedAt: s.StartedAt,
		Total:     len(s.Records),
		InFlight:  s.inFlight,
		Successes: s.successes,
		Errors:    s.errors,
	}, true
}

// LastSync returns the time of the last run with at least one success.
func (e *Engine) LastSync(ctx context.Context) (time.Time, bool, error) {
	return e.store.LastSync(ctx)
}

// begin opens a session unless one is live.
func (e *Engine) begin() (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return nil, false
	}
	e.session = &Session{
		ID:        uuid.New().String(),
		StartedAt: e.now(),
	}
	return e.session, true
}

func (e *Engine) end(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == s {
		e.session = nil
	}
}

// SyncAll pushes every pending record, sequentially. If a session is
// already live it returns OutcomeAlreadySyncing without pushing anything.
// Individual push failures are counted, never returned; an error is
// returned only when the pending set cannot be read.
func (e *Engine) SyncAll(ctx context.Context) (Result, error) {
	sess, ok := e.begin()
	if !ok {
		e.logger.Debug("sync requested while another session is running")
		return Result{Outcome: OutcomeAlreadySyncing, Message: "Sync already in progress"}, nil
	}
	defer e.end(sess)

	logger := e.logger.With("session_id", sess.ID)
	e.publishStatus(StateSyncing, "Starting sync...")

	pending, err := e.store.GetByStatus(ctx, store.SyncStatusPending)
	if err != nil {
		logger.Error("sync failed", "error", err)
		e.publishStatus(StateError, "Sync failed completely")
		return Result{Outcome: OutcomeFailed, Message: "Sync failed completely"}, fmt.Errorf("listing pending records: %w", err)
	}

	if len(pending) == 0 {
		e.publishStatus(StateSuccess, "Nothing to sync")
		return Result{Outcome: OutcomeNothingToSync, Message: "Nothing to sync"}, nil
	}

	e.mu.Lock()
	sess.Records = pending
	e.mu.Unlock()

	total := len(pending)
	logger.Info("sync started", "pending", total)

	var runErr error
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		e.mu.Lock()
		sess.inFlight = 1
		e.mu.Unlock()

		pushErr := e.push(ctx, rec)

		e.mu.Lock()
		sess.inFlight = 0
		if pushErr != nil {
			sess.errors++
		} else {
			sess.successes++
		}
		completed := sess.successes + sess.errors
		e.mu.Unlock()

		if pushErr != nil {
			logger.Warn("failed to sync record", "id", rec.ID, "error", pushErr)
		}
		e.events.Publish(Event{Kind: EventProgress, Completed: completed, Total: total})
	}

	e.mu.Lock()
	res := Result{
		Outcome:   OutcomeCompleted,
		Total:     total,
		Successes: sess.successes,
		Errors:    sess.errors,
	}
	e.mu.Unlock()

	if res.Successes > 0 {
		e.markLastSync(ctx)
	}

	if res.Errors == 0 && runErr == nil {
		res.Message = fmt.Sprintf("All %d snippets synced successfully", res.Successes)
		e.publishStatus(StateSuccess, res.Message)
	} else {
		res.Message = fmt.Sprintf("Synced %d/%d snippets. %d failed.", res.Successes, total, res.Errors)
		if skipped := total - res.Successes - res.Errors; skipped > 0 {
			res.Message += fmt.Sprintf(" %d not attempted.", skipped)
		}
		e.publishStatus(StateError, res.Message)
	}

	logger.Info("sync finished",
		"total", total,
		"successes", res.Successes,
		"errors", res.Errors,
	)
	return res, runErr
}

// SyncOne pushes a single record outside any session. It does not take
// the session lock, so it may interleave with SyncAll; the last write for
// an id wins.
func (e *Engine) SyncOne(ctx context.Context, id string) (Result, error) {
	rec, err := e.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Outcome: OutcomeNothingToSync, Message: "Nothing to sync"}, nil
	}
	if err != nil {
		return Result{Outcome: OutcomeFailed, Message: "Sync failed"}, fmt.Errorf("loading record %s: %w", id, err)
	}
	if rec.SyncStatus != store.SyncStatusPending {
		return Result{Outcome: OutcomeNothingToSync, Message: "Nothing to sync"}, nil
	}

	if err := e.push(ctx, rec); err != nil {
		e.logger.Warn("failed to sync record", "id", id, "error", err)
		return Result{Outcome: OutcomeFailed, Message: "Sync failed", Total: 1, Errors: 1}, err
	}

	return Result{Outcome: OutcomeCompleted, Message: "Snippet synced", Total: 1, Successes: 1}, nil
}

// push sends one record and records the result on it.
func (e *Engine) push(ctx context.Context, rec *store.Record) error {
	if err := e.remote.Push(ctx, rec); err != nil {
		// the record stays pending; the next run is the retry
		return &RemoteError{RecordID: rec.ID, Err: err}
	}
	if err := e.store.MarkSynced(ctx, rec.ID); err != nil {
		return fmt.Errorf("marking record %s synced: %w", rec.ID, err)
	}
	return nil
}

func (e *Engine) markLastSync(ctx context.Context) {
	t := e.now()
	if err := e.store.SetLastSync(ctx, t); err != nil {
		e.logger.Warn("failed to persist last sync time", "error", err)
		return
	}
	e.events.Publish(Event{Kind: EventLastSync, LastSync: t})
}

func (e *Engine) publishStatus(state State, msg string) {
	e.events.Publish(Event{Kind: EventStatus, State: state, Message: msg})
}
