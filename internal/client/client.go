// Package client provides an HTTP and WebSocket client for the portal server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/raphaelgruber/portal-go/internal/playback"
	"github.com/raphaelgruber/portal-go/internal/podcast"
	"github.com/raphaelgruber/portal-go/internal/prompt"
	"github.com/raphaelgruber/portal-go/internal/server"
	"github.com/raphaelgruber/portal-go/internal/service"
)

// Client talks to a portal server.
type Client struct {
	endpoint   string
	scope      string
	httpClient *http.Client
}

// New creates a client.
// If endpoint is empty, uses PORTAL_SERVER_URL or defaults to localhost:8585.
// Timeout can be configured via PORTAL_CLIENT_TIMEOUT (default 5m for LLM pages).
// Requests carry the scope from PORTAL_SCOPE when set.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("PORTAL_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8585"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("PORTAL_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		scope:      os.Getenv("PORTAL_SCOPE"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithScope returns a copy of c that sends scope with every request.
func (c *Client) WithScope(scope string) *Client {
	cp := *c
	cp.scope = scope
	return &cp
}

// APIError is a non-2xx server response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Do sends a JSON request and decodes the JSON response into result.
func (c *Client) Do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		raw, ok := body.(json.RawMessage)
		if !ok {
			var err error
			raw, err = json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.scope != "" {
		req.Header.Set(server.ScopeHeader, c.scope)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// PAGES
// =============================================================================

// Forecast requests a market forecast.
func (c *Client) Forecast(ctx context.Context, sel prompt.MarketSelection) (*service.ForecastPage, error) {
	var page service.ForecastPage
	if err := c.Do(ctx, http.MethodPost, "/api/markets/forecast", sel, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// AnalyzeStocks requests a stock analysis filtered by a preset.
func (c *Client) AnalyzeStocks(ctx context.Context, req server.StocksRequest) (*service.StocksPage, error) {
	var page service.StocksPage
	if err := c.Do(ctx, http.MethodPost, "/api/stocks/analyze", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FilterStocks re-filters the last analysis of the client's scope.
func (c *Client) FilterStocks(ctx context.Context, filter string) (*service.StocksPage, error) {
	var page service.StocksPage
	if err := c.Do(ctx, http.MethodPost, "/api/stocks/filter", server.FilterRequest{Filter: filter}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// LearningPath requests a learning path.
func (c *Client) LearningPath(ctx context.Context, sel prompt.LearningSelection) (*service.LearningPage, error) {
	var page service.LearningPage
	if err := c.Do(ctx, http.MethodPost, "/api/learning/path", sel, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Ideas requests podcast episode suggestions.
func (c *Client) Ideas(ctx context.Context, interest string, count int) (*service.IdeasPage, error) {
	var page service.IdeasPage
	req := server.IdeasRequest{Interest: interest, Count: count}
	if err := c.Do(ctx, http.MethodPost, "/api/learning/ideas", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Chat sends one chat turn.
func (c *Client) Chat(ctx context.Context, req service.ChatRequest) (*service.ChatPage, error) {
	var page service.ChatPage
	if err := c.Do(ctx, http.MethodPost, "/api/chat", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Draft drafts a message to a stored contact.
func (c *Client) Draft(ctx context.Context, req service.DraftRequest) (*service.DraftPage, error) {
	var page service.DraftPage
	if err := c.Do(ctx, http.MethodPost, "/api/comms/draft", req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Retry re-issues the failed request behind an error panel's retry key.
// result receives the page type of the original request.
func (c *Client) Retry(ctx context.Context, key string, result any) error {
	return c.Do(ctx, http.MethodPost, "/api/retry/"+key, nil, result)
}

// =============================================================================
// RECORDS
// =============================================================================

// ListRecords returns the raw JSON listing of kind.
func (c *Client) ListRecords(ctx context.Context, kind, sort string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if sort != "" {
		q.Set("sort", sort)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/records/" + url.PathEscape(kind)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out json.RawMessage
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRecord stores a record of kind from its JSON body.
func (c *Client) CreateRecord(ctx context.Context, kind string, body json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Do(ctx, http.MethodPost, "/api/records/"+url.PathEscape(kind), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteRecord removes a record.
func (c *Client) DeleteRecord(ctx context.Context, kind, id string) error {
	return c.Do(ctx, http.MethodDelete, "/api/records/"+url.PathEscape(kind)+"/"+url.PathEscape(id), nil, nil)
}

// =============================================================================
// PODCAST
// =============================================================================

// OpenSession starts a new episode, replacing the owner's current one.
func (c *Client) OpenSession(ctx context.Context, req podcast.OpenRequest) (*server.SessionView, error) {
	var view server.SessionView
	if err := c.Do(ctx, http.MethodPost, "/api/podcast/sessions", req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Session returns a session's current state.
func (c *Client) Session(ctx context.Context, id string) (*server.SessionView, error) {
	var view server.SessionView
	if err := c.Do(ctx, http.MethodGet, "/api/podcast/sessions/"+url.PathEscape(id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Action runs a playback action such as "play", "seek" or "extend".
func (c *Client) Action(ctx context.Context, id, action string, req server.ActionRequest) (*server.SessionView, error) {
	var view server.SessionView
	path := "/api/podcast/sessions/" + url.PathEscape(id) + "/" + url.PathEscape(action)
	if err := c.Do(ctx, http.MethodPost, path, req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// CloseSession tears down a session.
func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, "/api/podcast/sessions/"+url.PathEscape(id), nil, nil)
}

// Audio downloads the session's audio and its MIME type.
func (c *Client) Audio(ctx context.Context, id string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/podcast/sessions/"+url.PathEscape(id)+"/audio", nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// WatchSession streams session events to onEvent until the session
// closes, ctx ends or onEvent returns an error. A normal close returns nil.
func (c *Client) WatchSession(ctx context.Context, id string, onEvent func(playback.Event) error) error {
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/api/podcast/sessions/" + url.PathEscape(id) + "/events")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return &APIError{Status: resp.StatusCode, Message: "session not found"}
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var ev playback.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
	}
}

// =============================================================================
// STATS
// =============================================================================

// Stats holds the server's runtime statistics.
type Stats struct {
	Version       string           `json:"version"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	Sessions      int              `json:"sessions"`
	Metrics       metrics.Snapshot `json:"metrics"`
}

// Stats returns server statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.Do(ctx, http.MethodGet, "/api/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	return nil
}
