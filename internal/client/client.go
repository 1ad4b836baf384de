// Package client talks to the assistant backend's REST endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/pkg/httpext"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/rs/zerolog"
)

// Error is a non-2xx response from the backend.
type Error struct {
	StatusCode  int
	Message     string
	Description string
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("api error %d: %s (%s)", e.StatusCode, e.Message, e.Description)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	short   *http.Client
	long    *http.Client
	log     zerolog.Logger

	mu    sync.RWMutex
	token string
}

// New creates a client. Simple calls use requestTimeout; EnhancedSearch uses
// longTimeout.
func New(baseURL string, requestTimeout, longTimeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		short:   &http.Client{Timeout: requestTimeout},
		long:    &http.Client{Timeout: longTimeout},
		log:     logger.For(logger.CLIENT),
	}
}

func NewFromConfig(cfg config.ClientConfig) *Client {
	c := New(cfg.APIURL, cfg.RequestTimeout, cfg.LongRequestTimeout)
	c.SetToken(cfg.AuthToken)
	return c
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Health(ctx context.Context) (*protocol.HealthResponse, error) {
	var out protocol.HealthResponse
	if err := c.do(ctx, c.short, http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context) (*protocol.StatusResponse, error) {
	var out protocol.StatusResponse
	if err := c.do(ctx, c.short, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) History(ctx context.Context, sessionID string) ([]protocol.HistoryRecord, error) {
	var out protocol.HistoryPayload
	if err := c.do(ctx, c.short, http.MethodGet, historyPath(sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (c *Client) ClearHistory(ctx context.Context, sessionID string) error {
	return c.do(ctx, c.short, http.MethodDelete, historyPath(sessionID), nil, nil)
}

// EnhancedSearch runs the long search request.
func (c *Client) EnhancedSearch(ctx context.Context, req protocol.SearchRequest) (*protocol.SearchResponse, error) {
	var out protocol.SearchResponse
	if err := c.do(ctx, c.long, http.MethodPost, "/api/search/enhanced", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnonymousToken requests an anonymous access token and installs it on the
// client.
func (c *Client) AnonymousToken(ctx context.Context) (*protocol.TokenResponse, error) {
	var out protocol.TokenResponse
	req := protocol.TokenRequest{GrantType: "anonymous"}
	if err := c.do(ctx, c.short, http.MethodPost, "/oauth/token", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}

func historyPath(sessionID string) string {
	return "/api/chat/history?" + url.Values{"session_id": {sessionID}}.Encode()
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errResp := httpext.DecodeError(resp)
		return &Error{StatusCode: resp.StatusCode, Message: errResp.Error, Description: errResp.ErrorDescription}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
