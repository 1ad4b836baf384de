package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/pkg/httpext"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, r *mux.Router) *Client {
	t.Helper()
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return New(server.URL+"/", time.Second, 5*time.Second)
}

func TestHealthAndStatus(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		httpext.JsonResponse(w, http.StatusOK, protocol.HealthResponse{Status: "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		httpext.JsonResponse(w, http.StatusOK, protocol.StatusResponse{Status: "ok", Connections: 3, HistoryStore: "memory"})
	}).Methods(http.MethodGet)

	c := newTestClient(t, r)

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, status.Connections)
	assert.Equal(t, "memory", status.HistoryStore)
}

func TestHistoryRoundTrip(t *testing.T) {
	ts := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	var deleted string

	r := mux.NewRouter()
	r.HandleFunc("/api/chat/history", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		httpext.JsonResponse(w, http.StatusOK, protocol.HistoryPayload{
			SessionID: r.URL.Query().Get("session_id"),
			Records:   []protocol.HistoryRecord{{UserMessage: "u", AssistantMessage: "a", Timestamp: ts}},
		})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/history", func(w http.ResponseWriter, r *http.Request) {
		deleted = r.URL.Query().Get("session_id")
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	c := newTestClient(t, r)
	c.SetToken("tok")

	records, err := c.History(context.Background(), "s 1&x")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "u", records[0].UserMessage)
	assert.True(t, ts.Equal(records[0].Timestamp))

	require.NoError(t, c.ClearHistory(context.Background(), "s 1&x"))
	assert.Equal(t, "s 1&x", deleted)
}

func TestEnhancedSearch(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/search/enhanced", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req protocol.SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		httpext.JsonResponse(w, http.StatusOK, protocol.SearchResponse{
			Query: req.Query,
			Tips:  []string{"go early"},
		})
	}).Methods(http.MethodPost)

	c := newTestClient(t, r)

	resp, err := c.EnhancedSearch(context.Background(), protocol.SearchRequest{Query: "ramen", RadiusKM: 2})
	require.NoError(t, err)
	assert.Equal(t, "ramen", resp.Query)
	assert.Equal(t, []string{"go early"}, resp.Tips)
}

func TestAnonymousTokenInstallsToken(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		var req protocol.TokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "anonymous", req.GrantType)
		httpext.JsonResponse(w, http.StatusOK, protocol.TokenResponse{AccessToken: "jwt", TokenType: "Bearer", ExpiresIn: 900})
	}).Methods(http.MethodPost)

	c := newTestClient(t, r)

	tok, err := c.AnonymousToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 900, tok.ExpiresIn)
	assert.Equal(t, "jwt", c.Token())
}

func TestErrorDecoding(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantStatus  int
		wantMessage string
	}{
		{
			name: "json envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				httpext.JsonError(w, "session not found", http.StatusNotFound)
			},
			wantStatus:  http.StatusNotFound,
			wantMessage: "session not found",
		},
		{
			name: "plain text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream down", http.StatusBadGateway)
			},
			wantStatus:  http.StatusBadGateway,
			wantMessage: "upstream down",
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "503 Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mux.NewRouter()
			r.HandleFunc("/api/health", tt.handler)
			c := newTestClient(t, r)

			_, err := c.Health(context.Background())

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestShortTimeout(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(r)
	defer server.Close()

	c := New(server.URL, 20*time.Millisecond, time.Second)
	_, err := c.Health(context.Background())
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	c := NewFromConfig(config.ClientConfig{
		APIURL:             "http://api.local/",
		AuthToken:          "preset",
		RequestTimeout:     3 * time.Second,
		LongRequestTimeout: time.Minute,
	})

	assert.Equal(t, "http://api.local", c.baseURL)
	assert.Equal(t, "preset", c.Token())
	assert.Equal(t, 3*time.Second, c.short.Timeout)
	assert.Equal(t, time.Minute, c.long.Timeout)
}
