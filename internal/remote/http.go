// ABOUTME: HTTP remote that pushes records as JSON with a bearer device token
// ABOUTME: Any non-2xx answer becomes an HTTPError carrying the status and error payload

package remote

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

	"github.com/2389/snipsync/internal/auth"
	"github.com/2389/snipsync/internal/store"
	"github.com/2389/snipsync/internal/syncer"
)

// HTTPError is a non-2xx response from the remote.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// HTTPClient pushes records to `PUT {baseURL}/v1/records/{id}`.
type HTTPClient struct {
	baseURL    string
	deviceID   string
	tokens     *auth.DeviceTokens
	httpClient *http.Client
}

// NewHTTPClient creates a remote client. tokens may be nil for an
// unauthenticated remote.
func NewHTTPClient(baseURL, deviceID string, tokens *auth.DeviceTokens, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		deviceID:   deviceID,
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// Push sends one record. It makes a single attempt; a record that fails
// stays pending and is retried by the next sync run.
func (c *HTTPClient) Push(ctx context.Context, rec *store.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/v1/records/"+url.PathEscape(rec.ID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Generate(c.deviceID, auth.DefaultTokenTTL)
		if err != nil {
			return fmt.Errorf("minting device token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	if readErr != nil {
		return readErr
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}

var _ syncer.Remote = (*HTTPClient)(nil)
