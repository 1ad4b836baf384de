// Package app wires the conversation client together: the REST client, the
// transport manager, the message assembler, the session controller and the
// search service.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deepgram/wayfinder/internal/client"
	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/internal/conversation"
	"github.com/deepgram/wayfinder/internal/progress"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/search"
	"github.com/deepgram/wayfinder/internal/session"
	"github.com/deepgram/wayfinder/internal/transport"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/rs/zerolog"
)

var (
	ErrAlreadyStarted = errors.New("app: already started")
	ErrNotStarted     = errors.New("app: not started")
)

// Options carries the callbacks a front end hooks into the session.
type Options struct {
	OnError func(error)
	OnTurn  func(session.TurnState)
	// Dialer overrides the WebSocket dialer.
	Dialer transport.Dialer
}

type App struct {
	cfg *config.Config
	log zerolog.Logger

	client    *client.Client
	transport *transport.Manager
	messages  *conversation.Assembler
	session   *session.Controller
	search    *search.Service

	mu      sync.Mutex
	started bool
	closed  bool
}

func New(cfg *config.Config, opts Options) *App {
	c := client.NewFromConfig(cfg.Client)
	t := transport.NewManager(transport.OptionsFromConfig(cfg.Transport), opts.Dialer)
	messages := conversation.NewAssembler()

	controller := session.NewController(t, messages, session.Options{
		History: c,
		OnError: opts.OnError,
		OnTurn:  opts.OnTurn,
	})

	progressOpts := progress.OptionsFromConfig(cfg.Progress)

	return &App{
		cfg:       cfg,
		log:       logger.For(logger.APP),
		client:    c,
		transport: t,
		messages:  messages,
		session:   controller,
		search:    search.NewService(c, progressOpts),
	}
}

// Start obtains a token unless one is configured, connects the transport and
// waits for the server handshake. It may only be called once.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	token := a.client.Token()
	if token == "" {
		resp, err := a.client.AnonymousToken(ctx)
		if err != nil {
			return fmt.Errorf("requesting token: %w", err)
		}
		token = resp.AccessToken
		a.log.Debug().Str("session_id", resp.SessionID).Msg("Obtained anonymous token")
	}

	a.session.Attach()
	if err := a.transport.Connect(a.cfg.Client.WebSocketURL, token); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	if err := a.transport.AwaitConnected(ctx); err != nil {
		return fmt.Errorf("waiting for connection: %w", err)
	}

	a.log.Info().Str("session_id", a.transport.Identity()).Msg("Conversation started")
	return nil
}

// Close detaches the session and disconnects. It is safe to call more than
// once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.search.Cancel()
	a.session.Detach()
	a.transport.Disconnect()
	a.log.Info().Msg("Conversation closed")
	return nil
}

// SessionID is the identity the server assigned to this connection.
func (a *App) SessionID() string {
	if id := a.transport.Identity(); id != "" {
		return id
	}
	return a.session.SessionID()
}

// Send sends a chat message in the current session.
func (a *App) Send(text string) error {
	if !a.isStarted() {
		return ErrNotStarted
	}
	return a.session.SendMessage(text, a.SessionID())
}

// History replaces the local messages with the server's history.
func (a *App) History(ctx context.Context) error {
	if !a.isStarted() {
		return ErrNotStarted
	}
	return a.session.FetchHistory(ctx, a.SessionID())
}

func (a *App) ClearHistory(ctx context.Context) error {
	if !a.isStarted() {
		return ErrNotStarted
	}
	return a.session.ClearHistory(ctx, a.SessionID())
}

// Search runs an enhanced search with staged progress. It only needs a
// token, not a live connection.
func (a *App) Search(ctx context.Context, req protocol.SearchRequest, listener func(search.Event)) (*protocol.SearchResponse, error) {
	if a.client.Token() == "" {
		if _, err := a.client.AnonymousToken(ctx); err != nil {
			return nil, fmt.Errorf("requesting token: %w", err)
		}
	}
	return a.search.Search(ctx, req, listener)
}

func (a *App) CancelSearch() bool {
	return a.search.Cancel()
}

func (a *App) Client() *client.Client {
	return a.client
}

func (a *App) Transport() *transport.Manager {
	return a.transport
}

func (a *App) Messages() *conversation.Assembler {
	return a.messages
}

func (a *App) Session() *session.Controller {
	return a.session
}

func (a *App) isStarted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}
