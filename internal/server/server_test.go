// ABOUTME: Tests for the daemon's HTTP API, event streams, and listeners
// ABOUTME: Runs the real handler over httptest with a temporary SQLite file

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/2389/snipsync/internal/auth"
	"github.com/2389/snipsync/internal/cache"
	"github.com/2389/snipsync/internal/config"
	"github.com/2389/snipsync/internal/remote"
	"github.com/2389/snipsync/internal/store"
	"github.com/2389/snipsync/internal/syncer"
)

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "snipsync.db")
	cfg.Sync.Remote = config.RemoteNone
	return cfg
}

// freeAddr returns a loopback address with a currently unused port.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func acceptAll() syncer.Remote {
	return syncer.RemoteFunc(func(context.Context, *store.Record) error { return nil })
}

func newTestServer(t *testing.T, cfg *config.Config, r syncer.Remote) (*Server, *httptest.Server) {
	t.Helper()
	s, err := newServer(cfg, testLogger(), r)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRecordsAPI_Lifecycle(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t), acceptAll())
	base := ts.URL + "/_snipsync/records"

	resp := doJSON(t, http.MethodPost, base, map[string]string{"content": "fmt.Println()", "tag": "go"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[store.Record](t, resp)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, store.SyncStatusPending, created.SyncStatus)
	assert.Equal(t, "go", created.Tag)

	resp = doJSON(t, http.MethodGet, base+"/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[store.Record](t, resp)
	assert.Equal(t, "fmt.Println()", got.Content)

	resp = doJSON(t, http.MethodPut, base+"/"+created.ID, map[string]string{"content": "print()", "tag": "python"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[store.Record](t, resp)
	assert.Equal(t, "print()", updated.Content)
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt), "created_at must not change on edit")

	resp = doJSON(t, http.MethodGet, base+"?tag=python", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]store.Record](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	resp = doJSON(t, http.MethodDelete, base+"/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, base+"/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordsAPI_RejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t), acceptAll())
	base := ts.URL + "/_snipsync/records"

	tests := []struct {
		name   string
		method string
		url    string
		body   any
	}{
		{"missing content", http.MethodPost, base, map[string]string{"tag": "go"}},
		{"content not a string", http.MethodPost, base, map[string]any{"content": 12}},
		{"id mismatch", http.MethodPut, base + "/a", map[string]string{"id": "b", "content": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, tt.method, tt.url, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRecordsAPI_ListFilters(t *testing.T) {
	s, ts := newTestServer(t, testConfig(t), acceptAll())
	ctx := context.Background()

	_, err := s.store.Put(ctx, &store.Record{ID: "a", Content: "one"})
	require.NoError(t, err)
	_, err = s.store.PutSynced(ctx, &store.Record{ID: "b", Content: "two", SyncStatus: store.SyncStatusSynced})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodGet, ts.URL+"/_snipsync/records?status=pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decode[[]store.Record](t, resp)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)

	resp = doJSON(t, http.MethodGet, ts.URL+"/_snipsync/records?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/_snipsync/records?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/_snipsync/records", nil)
	all := decode[[]store.Record](t, resp)
	assert.Len(t, all, 2)
}

func TestSyncAPI_DrainsPending(t *testing.T) {
	s, ts := newTestServer(t, testConfig(t), acceptAll())
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := s.store.Put(ctx, &store.Record{ID: id, Content: id})
		require.NoError(t, err)
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/_snipsync/sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[SyncResponse](t, resp)
	assert.Equal(t, syncer.OutcomeCompleted, res.Outcome)
	assert.Equal(t, 2, res.Successes)
	assert.Empty(t, res.Error)

	resp = doJSON(t, http.MethodGet, ts.URL+"/_snipsync/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[StatusResponse](t, resp)
	assert.Equal(t, 2, status.Total)
	assert.Zero(t, status.Pending)
	require.NotNil(t, status.LastSync)
	assert.Nil(t, status.Cache)

	resp = doJSON(t, http.MethodPost, ts.URL+"/_snipsync/sync", nil)
	res = decode[SyncResponse](t, resp)
	assert.Equal(t, syncer.OutcomeNothingToSync, res.Outcome)
}

func TestSyncAPI_SyncOneReportsRemoteFailure(t *testing.T) {
	failing := syncer.RemoteFunc(func(context.Context, *store.Record) error {
		return errors.New("remote down")
	})
	s, ts := newTestServer(t, testConfig(t), failing)

	_, err := s.store.Put(context.Background(), &store.Record{ID: "a", Content: "x"})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, ts.URL+"/_snipsync/records/a/sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[SyncResponse](t, resp)
	assert.Equal(t, syncer.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "remote down")

	rec, err := s.store.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, store.SyncStatusPending, rec.SyncStatus)
}

func TestConnectivityAPI(t *testing.T) {
	s, ts := newTestServer(t, testConfig(t), acceptAll())

	resp := doJSON(t, http.MethodPost, ts.URL+"/_snipsync/connectivity", map[string]bool{"online": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, s.conn.Online())

	resp = doJSON(t, http.MethodGet, ts.URL+"/_snipsync/status", nil)
	status := decode[StatusResponse](t, resp)
	assert.False(t, status.Online)

	resp = doJSON(t, http.MethodPost, ts.URL+"/_snipsync/connectivity", map[string]string{"state": "up"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_ServesAppShellWithoutOrigin(t *testing.T) {
	_, ts := newTestServer(t, testConfig(t), acceptAll())

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp2, err := http.Get(ts.URL + "/_snipsync/unknown")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestHandler_ProxiesThroughCache(t *testing.T) {
	var originHits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits.Add(1)
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body{}"))
	}))
	defer origin.Close()

	cfg := testConfig(t)
	cfg.Origin.URL = origin.URL
	s, ts := newTestServer(t, cfg, acceptAll())

	resp, err := http.Get(ts.URL + "/styles/site.css")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "router refuses to serve before activation")

	require.NoError(t, s.prepareCache(context.Background()))

	for range 2 {
		resp, err = http.Get(ts.URL + "/styles/site.css")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "body{}", string(body))
	}
	assert.Equal(t, string(cache.SourceCache), resp.Header.Get(cache.SourceHeader))
	assert.Equal(t, int32(1), originHits.Load(), "static assets are cache-first")

	// the API is never forwarded to the origin
	resp, err = http.Get(ts.URL + "/_snipsync/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), originHits.Load())

	resp = doJSON(t, http.MethodGet, ts.URL+"/_snipsync/status", nil)
	status := decode[StatusResponse](t, resp)
	require.NotNil(t, status.Cache)
	assert.True(t, status.Cache.Activated)
	assert.Contains(t, status.Cache.Namespaces, "snipsync-static-v2")
}

// seedLastSync runs one sync so new subscribers receive a last-sync event
// first, which proves their subscription is live.
func seedLastSync(t *testing.T, s *Server) {
	t.Helper()
	ctx := context.Background()
	_, err := s.store.Put(ctx, &store.Record{ID: "seed", Content: "seed"})
	require.NoError(t, err)
	res, err := s.engine.SyncAll(ctx)
	require.NoError(t, err)
	require.Equal(t, syncer.OutcomeCompleted, res.Outcome)
}

func TestEvents_WebSocket(t *testing.T) {
	s, ts := newTestServer(t, testConfig(t), acceptAll())
	seedLastSync(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/_snipsync/events", nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	var ev syncer.Event
	require.NoError(t, wsjson.Read(ctx, c, &ev))
	require.Equal(t, syncer.EventLastSync, ev.Kind)

	_, err = s.store.Put(ctx, &store.Record{ID: "a", Content: "x"})
	require.NoError(t, err)
	go func() { _, _ = s.engine.SyncAll(context.Background()) }()

	var states []syncer.State
	for {
		require.NoError(t, wsjson.Read(ctx, c, &ev))
		if ev.Kind == syncer.EventStatus {
			states = append(states, ev.State)
			if ev.State != syncer.StateSyncing {
				break
			}
		}
	}
	assert.Equal(t, []syncer.State{syncer.StateSyncing, syncer.StateSuccess}, states)
}

func TestEvents_SSE(t *testing.T) {
	s, ts := newTestServer(t, testConfig(t), acceptAll())
	seedLastSync(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/_snipsync/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	next := func() string {
		for scanner.Scan() {
			if line, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				return line
			}
		}
		t.Fatalf("stream ended: %v", scanner.Err())
		return ""
	}

	require.Equal(t, string(syncer.EventLastSync), next())

	_, err = s.store.Put(ctx, &store.Record{ID: "a", Content: "x"})
	require.NoError(t, err)
	go func() { _, _ = s.engine.SyncAll(context.Background()) }()

	assert.Equal(t, string(syncer.EventStatus), next())
}

func TestServer_RunServesGRPCHealth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HTTPAddr = freeAddr(t)
	cfg.Server.GRPCAddr = freeAddr(t)

	s, err := newServer(cfg, testLogger(), acceptAll())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer ccancel()
		resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{Service: service}, grpc.WaitForReady(true))
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(syncHealthService))

	s.conn.SetOnline(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(syncHealthService))

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServer_RunReturnsWithEventStreamOpen(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HTTPAddr = freeAddr(t)
	cfg.Server.GRPCAddr = ""

	s, err := newServer(cfg, testLogger(), acceptAll())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	base := "http://" + cfg.Server.HTTPAddr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer reqCancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base+"/_snipsync/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Less(t, time.Since(start), 3*time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("Run held open by an event stream subscriber")
	}

	_, err = io.Copy(io.Discard, resp.Body)
	assert.NoError(t, err, "stream ends cleanly when the server shuts down")
}

func TestServer_SyncsToSinkOverHTTP(t *testing.T) {
	tokens := auth.NewDeviceTokens([]byte("shared-secret"))
	sink := remote.NewSink(tokens, testLogger())
	sinkServer := httptest.NewServer(sink.Handler())
	defer sinkServer.Close()

	cfg := testConfig(t)
	cfg.Sync.Remote = config.RemoteHTTP
	cfg.Sync.URL = sinkServer.URL
	cfg.Sync.DeviceID = "laptop"
	cfg.Sync.TokenSecret = "shared-secret"

	s, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	ctx := context.Background()
	_, err = s.store.Put(ctx, &store.Record{ID: "a", Content: "hello", Tag: "txt"})
	require.NoError(t, err)

	res, err := s.Engine().SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successes)

	got, ok := sink.Record("a")
	require.True(t, ok)
	assert.Equal(t, "hello", got.Content)
}

func TestBuildRemote(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		wantType   any
		wantCloser bool
		wantErr    bool
	}{
		{"simulated", func(c *config.Config) { c.Sync.Remote = config.RemoteSimulated }, &remote.Simulated{}, false, false},
		{"http", func(c *config.Config) {
			c.Sync.Remote = config.RemoteHTTP
			c.Sync.URL = "http://example.invalid"
		}, &remote.HTTPClient{}, false, false},
		{"postgres", func(c *config.Config) {
			c.Sync.Remote = config.RemotePostgres
			c.Sync.PostgresDSN = "postgres://localhost/snipsync"
		}, &remote.PostgresRemote{}, true, false},
		{"postgres without dsn", func(c *config.Config) { c.Sync.Remote = config.RemotePostgres }, nil, false, true},
		{"unknown", func(c *config.Config) { c.Sync.Remote = "carrier-pigeon" }, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			r, closer, err := BuildRemote(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, r)
			assert.Equal(t, tt.wantCloser, closer != nil)
		})
	}

	t.Run("none", func(t *testing.T) {
		cfg := config.Default()
		cfg.Sync.Remote = config.RemoteNone
		r, _, err := BuildRemote(cfg)
		require.NoError(t, err)
		assert.ErrorIs(t, r.Push(context.Background(), &store.Record{ID: "a"}), ErrNoRemote)
	})
}
