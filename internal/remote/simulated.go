// ABOUTME: Simulated remote with configurable latency and success rate
// ABOUTME: Stands in for a real server during local development and demos

package remote

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/2389/snipsync/internal/store"
)

// ErrSimulated is the failure a Simulated remote reports.
var ErrSimulated = errors.New("simulated server error")

// Simulated accepts a fraction of pushes after a fixed delay.
type Simulated struct {
	SuccessRate float64 // 0..1
	Latency     time.Duration

	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// NewSimulated returns a simulated remote that succeeds 90% of the time
// after 500ms.
func NewSimulated() *Simulated {
	return &Simulated{SuccessRate: 0.9, Latency: 500 * time.Millisecond}
}

// Push waits Latency, then succeeds with probability SuccessRate.
func (s *Simulated) Push(ctx context.Context, rec *store.Record) error {
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	roll := rand.Float64
	if s.Rand != nil {
		roll = s.Rand
	}
	if roll() < s.SuccessRate {
		return nil
	}
	return ErrSimulated
}
