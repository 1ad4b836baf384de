package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/services"
	"github.com/deepgram/wayfinder/internal/services/history"
	"github.com/deepgram/wayfinder/internal/services/oauth"
	"github.com/deepgram/wayfinder/internal/services/responder"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) (*httptest.Server, *services.Services) {
	t.Helper()
	t.Cleanup(config.SetJWTSecret([]byte("test-secret")))

	svc := services.New(
		config.ServerConfig{TokenLifetime: time.Minute},
		history.NewServiceWithStore(history.NewMemoryStore(), "memory"),
		&responder.Echo{},
	)
	server := httptest.NewServer(NewHandler(svc, DefaultTimeouts))
	t.Cleanup(server.Close)
	return server, svc
}

func dial(t *testing.T, server *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(wsURL, header)
}

func readEnvelope(t *testing.T, ws *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env protocol.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	return env
}

func send(t *testing.T, ws *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))
}

func TestRejectsMissingToken(t *testing.T) {
	server, _ := newTestBackend(t)

	_, resp, err := dial(t, server, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(t, server, "not-a-token")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatTurn(t *testing.T) {
	server, svc := newTestBackend(t)
	token, claims, err := oauth.IssueAnonymousToken(time.Minute)
	require.NoError(t, err)

	ws, _, err := dial(t, server, token)
	require.NoError(t, err)
	defer ws.Close()

	connect := readEnvelope(t, ws)
	assert.Equal(t, protocol.EventConnect, connect.Event)
	var hello protocol.ConnectPayload
	require.NoError(t, json.Unmarshal(connect.Data, &hello))
	assert.Equal(t, claims.SessionID, hello.ID)

	send(t, ws, protocol.EventChatMessage, protocol.MessagePayload{Message: "coffee nearby"})

	start := readEnvelope(t, ws)
	assert.Equal(t, protocol.EventChatStart, start.Event)

	var reply strings.Builder
	for {
		env := readEnvelope(t, ws)
		if env.Event == protocol.EventChatEnd {
			break
		}
		require.Equal(t, protocol.EventChatContent, env.Event)
		var content protocol.ContentPayload
		require.NoError(t, json.Unmarshal(env.Data, &content))
		assert.Equal(t, protocol.ContentContent, content.Type)
		reply.WriteString(content.Data)
	}
	assert.Equal(t, "You said: coffee nearby", reply.String())

	// The turn is saved after chat_end is written.
	require.Eventually(t, func() bool {
		records, err := svc.GetHistoryService().List(context.Background(), claims.SessionID)
		return err == nil && len(records) == 1
	}, time.Second, 10*time.Millisecond)

	send(t, ws, protocol.EventChatHistoryRequest, protocol.SessionPayload{})
	env := readEnvelope(t, ws)
	require.Equal(t, protocol.EventChatHistory, env.Event)
	var payload protocol.HistoryPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	require.Len(t, payload.Records, 1)
	assert.Equal(t, "coffee nearby", payload.Records[0].UserMessage)
	assert.Equal(t, "You said: coffee nearby", payload.Records[0].AssistantMessage)
}

func TestDispatchErrors(t *testing.T) {
	server, _ := newTestBackend(t)
	token, _, err := oauth.IssueAnonymousToken(time.Minute)
	require.NoError(t, err)

	ws, _, err := dial(t, server, token)
	require.NoError(t, err)
	defer ws.Close()
	readEnvelope(t, ws)

	tests := []struct {
		name  string
		frame func(t *testing.T)
		want  string
	}{
		{
			name:  "malformed frame",
			frame: func(t *testing.T) { require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{"))) },
			want:  "Malformed message",
		},
		{
			name:  "empty message",
			frame: func(t *testing.T) { send(t, ws, protocol.EventChatMessage, protocol.MessagePayload{}) },
			want:  "Message cannot be empty",
		},
		{
			name: "foreign session",
			frame: func(t *testing.T) {
				send(t, ws, protocol.EventChatMessage, protocol.MessagePayload{Message: "hi", SessionID: "someone-else"})
			},
			want: "Session does not belong to connection",
		},
		{
			name:  "foreign history",
			frame: func(t *testing.T) { send(t, ws, protocol.EventChatHistoryRequest, protocol.SessionPayload{SessionID: "someone-else"}) },
			want:  "Session does not belong to connection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.frame(t)
			env := readEnvelope(t, ws)
			require.Equal(t, protocol.EventChatError, env.Event)
			var payload protocol.ErrorPayload
			require.NoError(t, json.Unmarshal(env.Data, &payload))
			assert.Equal(t, tt.want, payload.Error)
		})
	}
}

func TestPingAndConnectionTracking(t *testing.T) {
	server, svc := newTestBackend(t)
	token, _, err := oauth.IssueAnonymousToken(time.Minute)
	require.NoError(t, err)

	ws, _, err := dial(t, server, token)
	require.NoError(t, err)
	readEnvelope(t, ws)
	assert.Equal(t, 1, svc.Connections())

	send(t, ws, protocol.EventPing, nil)
	assert.Equal(t, protocol.EventPong, readEnvelope(t, ws).Event)

	ws.Close()
	assert.Eventually(t, func() bool { return svc.Connections() == 0 }, time.Second, 10*time.Millisecond)
}
