// ABOUTME: Streams sync events to clients over WebSocket, or SSE as a fallback
// ABOUTME: Each connection gets its own engine subscription for its lifetime

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/2389/snipsync/internal/syncer"
)

const (
	heartbeatInterval = 30 * time.Second
	eventWriteTimeout = 5 * time.Second
)

// handleEvents upgrades to a WebSocket when asked, otherwise streams SSE.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		s.streamWebSocket(w, r)
		return
	}
	s.streamSSE(w, r)
}

// currentStatus is the first event a new subscriber sees, so it can render
// without waiting for the next run.
func (s *Server) currentStatus(ctx context.Context) []syncer.Event {
	now := time.Now().UTC()
	var events []syncer.Event
	if snap, live := s.engine.Session(); live {
		events = append(events, syncer.Event{
			Kind:    syncer.EventStatus,
			State:   syncer.StateSyncing,
			Message: "Syncing...",
			Time:    now,
		}, syncer.Event{
			Kind:      syncer.EventProgress,
			Completed: snap.Successes + snap.Errors,
			Total:     snap.Total,
			Time:      now,
		})
	}
	if last, ok, err := s.engine.LastSync(ctx); err == nil && ok {
		events = append(events, syncer.Event{Kind: syncer.EventLastSync, LastSync: last, Time: now})
	}
	return events
}

func (s *Server) streamWebSocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "unexpected exit")

	// clients never send; CloseRead handles their close frame
	ctx := c.CloseRead(r.Context())
	events := s.engine.Subscribe(ctx)

	write := func(ev syncer.Event) error {
		wctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
		defer cancel()
		return wsjson.Write(wctx, c, ev)
	}

	for _, ev := range s.currentStatus(ctx) {
		if err := write(ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				_ = c.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := write(ev); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	events := s.engine.Subscribe(ctx)

	for _, ev := range s.currentStatus(ctx) {
		if err := writeSSEEvent(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				s.logger.Debug("sse write failed", "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event named after its kind.
func writeSSEEvent(w http.ResponseWriter, ev syncer.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
