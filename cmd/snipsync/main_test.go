// ABOUTME: Tests for the CLI's daemon client, log handler, and sink wiring
// ABOUTME: Uses httptest stand-ins for the daemon

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/snipsync/internal/remote"
	"github.com/2389/snipsync/internal/store"
)

func TestAPIClient_PutChoosesMethod(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]string
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(store.Record{ID: "abc", Content: gotBody["content"]})
	}))
	defer daemon.Close()

	c := newAPIClient(daemon.URL, nil)
	ctx := context.Background()

	rec, err := c.put(ctx, "", "hello", "txt")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/_snipsync/records", gotPath)
	assert.Equal(t, "txt", gotBody["tag"])
	assert.Equal(t, "abc", rec.ID)

	_, err = c.put(ctx, "a b", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/_snipsync/records/a b", gotPath)
}

func TestAPIClient_ReportsDaemonErrors(t *testing.T) {
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"record not found"}`))
	}))
	defer daemon.Close()

	_, err := newAPIClient(daemon.URL, nil).get(context.Background(), "missing")
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "record not found", apiErr.Message)
}

func TestAPIClient_ListEncodesFilter(t *testing.T) {
	var gotQuery url.Values
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer daemon.Close()

	recs, err := newAPIClient(daemon.URL, nil).list(context.Background(), url.Values{"status": {"pending"}})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, "pending", gotQuery.Get("status"))
}

func TestNewAPIClient_AddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7420", newAPIClient("127.0.0.1:7420", nil).baseURL)
	assert.Equal(t, "https://snip.example", newAPIClient("https://snip.example/", nil).baseURL)
}

func TestColorHandler_WritesAttrsAndGroups(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	logger.With("component", "syncer").WithGroup("run").Info("sync finished", "total", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF sync finished")
	assert.Contains(t, out, "component=syncer")
	assert.Contains(t, out, "run.total=3")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "first", preview("first\nsecond", 40))
	assert.Equal(t, "abcd…", preview("abcdefgh", 5))
}

func TestReadContent(t *testing.T) {
	got, err := readContent(strings.NewReader("from stdin"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	got, err = readContent(strings.NewReader("ignored"), []string{"inline"})
	require.NoError(t, err)
	assert.Equal(t, "inline", got)
}

func TestSinkHandler_ServesSinkAndShell(t *testing.T) {
	srv := httptest.NewServer(sinkHandler(remote.NewSink(nil, nil)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, err = http.Get(srv.URL + "/v1/records/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRootCmd_HasCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "init", "put", "get", "list", "delete", "sync", "status", "cache", "sink", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
