// ABOUTME: Connectivity watcher that probes a URL and tracks online/offline transitions
// ABOUTME: Also accepts externally reported state; listeners hear about every transition

package lifecycle

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const defaultProbeInterval = 30 * time.Second

// Connectivity tracks whether the remote side is reachable. It starts
// out online.
type Connectivity struct {
	probeURL string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	mu        sync.Mutex
	online    bool
	changedAt time.Time
	listeners []func(online bool)
}

// NewConnectivity creates a watcher. An empty probeURL disables probing;
// state then changes only through SetOnline.
func NewConnectivity(probeURL string, interval time.Duration, client *http.Client, logger *slog.Logger) *Connectivity {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connectivity{
		probeURL:  probeURL,
		interval:  interval,
		client:    client,
		logger:    logger.With("component", "connectivity"),
		online:    true,
		changedAt: time.Now(),
	}
}

// Online reports the last known state.
func (c *Connectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// ChangedAt returns when the state last changed.
func (c *Connectivity) ChangedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changedAt
}

// OnChange registers fn for every transition.
func (c *Connectivity) OnChange(fn func(online bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SetOnline records the current state. Listeners run only on a transition,
// outside the lock.
func (c *Connectivity) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	c.changedAt = time.Now()
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.Unlock()

	if online {
		c.logger.Info("back online")
	} else {
		c.logger.Warn("gone offline")
	}
	for _, fn := range listeners {
		fn(online)
	}
}

// Probe sends a HEAD to the probe URL. Any HTTP answer counts as online;
// only transport failures mean offline.
func (c *Connectivity) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.probeURL, nil)
	if err != nil {
		c.logger.Error("bad probe url", "url", c.probeURL, "error", err)
		return c.Online()
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("probe failed", "url", c.probeURL, "error", err)
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Run probes immediately and then on every interval until ctx ends.
func (c *Connectivity) Run(ctx context.Context) {
	if c.probeURL == "" {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		online := c.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		c.SetOnline(online)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
