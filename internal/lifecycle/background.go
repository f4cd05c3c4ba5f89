// ABOUTME: Periodic background sync trigger
// ABOUTME: Fires the shared trigger on a fixed interval until cancelled

package lifecycle

import (
	"context"
	"time"
)

// BackgroundTrigger fires a Trigger on a fixed interval.
type BackgroundTrigger struct {
	trigger  *Trigger
	interval time.Duration
}

// NewBackgroundTrigger returns a background trigger. A non-positive
// interval disables it.
func NewBackgroundTrigger(trigger *Trigger, interval time.Duration) *BackgroundTrigger {
	return &BackgroundTrigger{trigger: trigger, interval: interval}
}

// Run blocks until ctx is done.
func (b *BackgroundTrigger) Run(ctx context.Context) {
	if b.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.trigger.Fire(ctx, "background")
		}
	}
}
