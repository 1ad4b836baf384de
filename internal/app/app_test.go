package app

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deepgram/wayfinder/internal/api/v1/routes"
	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/internal/conversation"
	"github.com/deepgram/wayfinder/internal/progress"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/search"
	"github.com/deepgram/wayfinder/internal/services"
	"github.com/deepgram/wayfinder/internal/services/history"
	"github.com/deepgram/wayfinder/internal/services/responder"
	"github.com/deepgram/wayfinder/internal/session"
	"github.com/deepgram/wayfinder/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Cleanup(config.SetJWTSecret([]byte("test-secret")))

	svc := services.New(
		config.ServerConfig{TokenLifetime: time.Minute},
		history.NewServiceWithStore(history.NewMemoryStore(), "memory"),
		&responder.Echo{},
	)
	server := httptest.NewServer(routes.NewRouter(svc))
	t.Cleanup(server.Close)

	cfg := config.FromEnv()
	cfg.Client.APIURL = server.URL
	cfg.Client.WebSocketURL = "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	cfg.Client.AuthToken = ""
	cfg.Transport.ReconnectAttempts = 0
	cfg.Progress.FinishDelay = time.Millisecond
	cfg.Progress.SearchTimeout = 5 * time.Second
	return cfg
}

func lastMessage(messages []conversation.Message) (conversation.Message, bool) {
	if len(messages) == 0 {
		return conversation.Message{}, false
	}
	return messages[len(messages)-1], true
}

func TestConversationRoundTrip(t *testing.T) {
	var mu sync.Mutex
	var turns []session.TurnState

	a := New(newTestConfig(t), Options{
		OnTurn: func(s session.TurnState) {
			mu.Lock()
			turns = append(turns, s)
			mu.Unlock()
		},
	})
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, a.Start(ctx))
	assert.Equal(t, transport.StatusConnected, a.Transport().State().Status)
	assert.NotEmpty(t, a.SessionID())
	assert.ErrorIs(t, a.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, a.Send("coffee nearby"))
	require.Eventually(t, func() bool {
		msg, ok := lastMessage(a.Messages().Messages())
		return ok && msg.Sender == conversation.SenderAssistant && msg.IsComplete
	}, 2*time.Second, 10*time.Millisecond)

	messages := a.Messages().Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "coffee nearby", messages[0].Content)
	assert.Equal(t, "You said: coffee nearby", messages[1].Content)

	require.Eventually(t, func() bool {
		return a.Session().Turn() == session.TurnIdle
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Contains(t, turns, session.TurnAssistantComplete)
	mu.Unlock()

	// History rebuilds the same two messages from the stored turn.
	require.Eventually(t, func() bool {
		if err := a.History(ctx); err != nil {
			return false
		}
		return len(a.Messages().Messages()) == 2
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "You said: coffee nearby", a.Messages().Messages()[1].Content)

	require.NoError(t, a.ClearHistory(ctx))
	assert.Empty(t, a.Messages().Messages())

	require.NoError(t, a.Close())
	assert.Equal(t, transport.StatusDisconnected, a.Transport().State().Status)
	require.NoError(t, a.Close())
}

func TestSearchReportsProgress(t *testing.T) {
	a := New(newTestConfig(t), Options{})
	defer a.Close()

	var mu sync.Mutex
	var events []search.Event
	resp, err := a.Search(context.Background(), protocol.SearchRequest{Query: "ramen", RadiusKM: 2}, func(ev search.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, "ramen", resp.Query)
	assert.NotEmpty(t, resp.Tips)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, progress.StageInitializing, events[0].Stage)
	last := events[len(events)-1]
	assert.Equal(t, progress.StageCompleted, last.Stage)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, resp, last.Payload)
}

func TestNotStarted(t *testing.T) {
	a := New(newTestConfig(t), Options{})
	defer a.Close()

	assert.ErrorIs(t, a.Send("hi"), ErrNotStarted)
	assert.ErrorIs(t, a.History(context.Background()), ErrNotStarted)
	assert.ErrorIs(t, a.ClearHistory(context.Background()), ErrNotStarted)
}

func TestStartFailsWhenBackendIsDown(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Client.APIURL = "http://127.0.0.1:1"

	a := New(cfg, Options{})
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, a.Start(ctx))
}
