// ABOUTME: HTTP client for the daemon's local /_snipsync/ API
// ABOUTME: Used by the CLI's record, sync, status, and cache commands

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/snipsync/internal/server"
	"github.com/2389/snipsync/internal/store"
)

// apiClient talks to a running daemon.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(addr string, httpClient *http.Client) *apiClient {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &apiClient{baseURL: base, httpClient: httpClient}
}

// apiError is a non-2xx answer from the daemon.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contacting daemon at %s (is `snipsync serve` running?): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		return &apiError{StatusCode: resp.StatusCode, Message: payload.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *apiClient) put(ctx context.Context, id, content, tag string) (*store.Record, error) {
	in := map[string]string{"content": content, "tag": tag}
	var rec store.Record
	if id == "" {
		if err := c.do(ctx, http.MethodPost, "/_snipsync/records", in, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	}
	if err := c.do(ctx, http.MethodPut, "/_snipsync/records/"+url.PathEscape(id), in, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *apiClient) get(ctx context.Context, id string) (*store.Record, error) {
	var rec store.Record
	if err := c.do(ctx, http.MethodGet, "/_snipsync/records/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *apiClient) list(ctx context.Context, filter url.Values) ([]store.Record, error) {
	path := "/_snipsync/records"
	if len(filter) > 0 {
		path += "?" + filter.Encode()
	}
	var recs []store.Record
	if err := c.do(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *apiClient) delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/_snipsync/records/"+url.PathEscape(id), nil, nil)
}

// sync runs a bulk sync, or a single-record sync when id is set. A remote
// failure is reported in the response, not as an error.
func (c *apiClient) sync(ctx context.Context, id string) (*server.SyncResponse, error) {
	path := "/_snipsync/sync"
	if id != "" {
		path = "/_snipsync/records/" + url.PathEscape(id) + "/sync"
	}
	var res server.SyncResponse
	if err := c.do(ctx, http.MethodPost, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *apiClient) status(ctx context.Context) (*server.StatusResponse, error) {
	var st server.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/_snipsync/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *apiClient) installCache(ctx context.Context) (*server.CacheStatus, error) {
	var cs server.CacheStatus
	if err := c.do(ctx, http.MethodPost, "/_snipsync/cache/install", nil, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}
