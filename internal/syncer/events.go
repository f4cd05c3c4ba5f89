// ABOUTME: Sync status events and the in-memory broadcaster that fans them out
// ABOUTME: Subscribers get a buffered channel; slow subscribers miss events instead of blocking sync

package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// EventKind identifies what an Event reports.
type EventKind string

const (
	EventStatus   EventKind = "sync-status-change"
	EventLastSync EventKind = "last-sync-updated"
	EventProgress EventKind = "progress"
)

// State is the sync state carried by status events.
type State string

const (
	StateSyncing State = "syncing"
	StateSuccess State = "sync-success"
	StateError   State = "sync-error"
)

// Event is a fire-and-forget notification about a sync run.
// Which fields are set depends on Kind:
//
//	sync-status-change: State, Message
//	last-sync-updated:  LastSync
//	progress:           Completed, Total
type Event struct {
	Kind      EventKind `json:"kind"`
	State     State     `json:"state,omitempty"`
	Message   string    `json:"message,omitempty"`
	LastSync  time.Time `json:"lastSync,omitzero"`
	Completed int       `json:"completed,omitempty"`
	Total     int       `json:"total,omitempty"`
	Time      time.Time `json:"time"`
}

// Broadcaster provides in-memory pub/sub for sync events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event // subID -> ch
	closed      bool
	done        chan struct{}  // closed by Close; releases watcher goroutines
	watchers    sync.WaitGroup // one per live subscription
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan Event),
		done:        make(chan struct{}),
		logger:      logger.With("component", "sync-events"),
	}
}

// Subscribe registers a subscriber. The returned channel is closed when ctx
// is cancelled or the broadcaster is closed.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.watchers.Add(1)
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		defer b.watchers.Done()
		select {
		case <-ctx.Done():
			b.Unsubscribe(subID)
		case <-b.done:
		}
	}()

	return ch, subID
}

// Publish delivers ev to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send; every send is non-blocking.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber", "sub_id", id, "kind", ev.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close closes all subscriber channels and stops their watcher goroutines.
// Later subscriptions get a closed channel. Close is safe to call twice.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.watchers.Wait()
}
