// Package session drives logical chat turns over a transport and keeps the
// local message sequence in step with the server.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/deepgram/wayfinder/internal/conversation"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/transport"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/rs/zerolog"
)

type TurnState string

const (
	TurnIdle               TurnState = "idle"
	TurnUserMessageSent    TurnState = "user-message-sent"
	TurnAssistantStart     TurnState = "assistant-start"
	TurnAssistantStreaming TurnState = "assistant-streaming"
	TurnAssistantComplete  TurnState = "assistant-complete"
)

var (
	ErrInterrupted = errors.New("session: turn interrupted by disconnect")
	ErrNotAttached = errors.New("session: controller not attached")
)

// ChatError is an error pushed by the server for the current turn.
type ChatError struct {
	Message string
}

func (e *ChatError) Error() string {
	return "chat error: " + e.Message
}

// Transport is the part of transport.Manager the controller uses.
type Transport interface {
	Emit(event string, payload interface{}) bool
	On(event string, handler transport.Handler) func()
	State() transport.ConnectionState
}

// HistorySource fetches and clears history over REST when the socket is
// unavailable.
type HistorySource interface {
	History(ctx context.Context, sessionID string) ([]protocol.HistoryRecord, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

type Options struct {
	History HistorySource
	OnError func(error)
	OnTurn  func(TurnState)
}

type Controller struct {
	transport Transport
	messages  *conversation.Assembler
	opts      Options
	log       zerolog.Logger

	mu        sync.Mutex
	turn      TurnState
	sessionID string
	disposers []func()
	waiters   []chan error
}

func NewController(t Transport, messages *conversation.Assembler, opts Options) *Controller {
	return &Controller{
		transport: t,
		messages:  messages,
		opts:      opts,
		log:       logger.For(logger.SESSION),
		turn:      TurnIdle,
	}
}

// Attach subscribes to the transport events that drive a turn. Calling it
// again is a no-op until Detach.
func (c *Controller) Attach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposers != nil {
		return
	}

	c.disposers = []func(){
		c.transport.On(protocol.EventChatStart, func(json.RawMessage) { c.handleStart() }),
		c.transport.On(protocol.EventChatContent, c.handleContent),
		c.transport.On(protocol.EventChunk, c.handleContent),
		c.transport.On(protocol.EventChatEnd, func(json.RawMessage) { c.handleEnd() }),
		c.transport.On(protocol.EventComplete, func(json.RawMessage) { c.handleEnd() }),
		c.transport.On(protocol.EventChatError, c.handleError),
		c.transport.On(protocol.EventChatHistory, c.handleHistory),
		c.transport.On(protocol.EventDisconnect, func(json.RawMessage) { c.handleDisconnect() }),
	}
	c.log.Debug().Int("subscriptions", len(c.disposers)).Msg("Attached to transport")
}

// Detach releases every subscription made by Attach.
func (c *Controller) Detach() {
	c.mu.Lock()
	disposers := c.disposers
	c.disposers = nil
	c.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
}

func (c *Controller) Turn() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turn
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Messages exposes the assembled sequence.
func (c *Controller) Messages() *conversation.Assembler {
	return c.messages
}

// SendMessage appends text as a user message and sends it. Blank text is
// ignored. An empty sessionID reuses the last one given.
func (c *Controller) SendMessage(text, sessionID string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	sessionID = c.useSession(sessionID)

	c.messages.AddUserMessage(text)
	c.setTurn(TurnUserMessageSent)

	if !c.transport.Emit(protocol.EventChatMessage, protocol.MessagePayload{Message: text, SessionID: sessionID}) {
		c.setTurn(TurnIdle)
		return transport.ErrNotConnected
	}
	return nil
}

// FetchHistory asks the server for the session history and waits until it
// has replaced the local sequence. A chat error or a disconnect ends the wait
// with that error. Without a connection it falls back to the REST history
// source.
func (c *Controller) FetchHistory(ctx context.Context, sessionID string) error {
	sessionID = c.useSession(sessionID)

	if c.connected() {
		c.mu.Lock()
		if c.disposers == nil {
			c.mu.Unlock()
			return ErrNotAttached
		}
		ready := make(chan error, 1)
		c.waiters = append(c.waiters, ready)
		c.mu.Unlock()

		if c.transport.Emit(protocol.EventChatHistoryRequest, protocol.SessionPayload{SessionID: sessionID}) {
			select {
			case err := <-ready:
				if err != nil {
					return fmt.Errorf("fetching history: %w", err)
				}
				return nil
			case <-ctx.Done():
				c.dropWaiter(ready)
				return ctx.Err()
			}
		}
		c.dropWaiter(ready)
	}

	if c.opts.History == nil {
		return transport.ErrNotConnected
	}

	records, err := c.opts.History.History(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}
	c.messages.OnHistory(records)
	return nil
}

// ClearHistory asks the server to clear the session history, then empties
// the local sequence.
func (c *Controller) ClearHistory(ctx context.Context, sessionID string) error {
	sessionID = c.useSession(sessionID)

	if !c.connected() || !c.transport.Emit(protocol.EventChatClear, protocol.SessionPayload{SessionID: sessionID}) {
		if c.opts.History == nil {
			return transport.ErrNotConnected
		}
		if err := c.opts.History.ClearHistory(ctx, sessionID); err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
	}

	c.messages.Reset()
	c.setTurn(TurnIdle)
	return nil
}

// EndSession ends a logical session. The connection stays open for the next
// one.
func (c *Controller) EndSession(sessionID string) error {
	c.mu.Lock()
	if sessionID == "" {
		sessionID = c.sessionID
	}
	if sessionID == c.sessionID {
		c.sessionID = ""
	}
	c.mu.Unlock()

	c.messages.ForceClose()
	c.setTurn(TurnIdle)

	if !c.transport.Emit(protocol.EventSessionEnd, protocol.SessionPayload{SessionID: sessionID}) {
		return transport.ErrNotConnected
	}
	c.log.Info().Str("session_id", sessionID).Msg("Session ended")
	return nil
}

func (c *Controller) handleStart() {
	c.messages.OnStart()
	c.setTurn(TurnAssistantStart)
}

func (c *Controller) handleContent(data json.RawMessage) {
	var payload protocol.ContentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		var text string
		if json.Unmarshal(data, &text) != nil {
			c.log.Warn().Err(err).Int("bytes", len(data)).Msg("Ignoring malformed content payload")
			return
		}
		payload = protocol.ContentPayload{Type: protocol.ContentContent, Data: text}
	}

	switch payload.Type {
	case protocol.ContentStart:
		c.handleStart()
	case protocol.ContentEnd:
		c.handleEnd()
	default:
		c.messages.OnContent(payload.Data)
		c.setTurn(TurnAssistantStreaming)
	}
}

func (c *Controller) handleEnd() {
	c.messages.OnEnd()
	c.setTurn(TurnAssistantComplete)
	c.setTurn(TurnIdle)
}

func (c *Controller) handleError(data json.RawMessage) {
	var payload protocol.ErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = "unknown error"
	}

	c.messages.ForceClose()
	c.setTurn(TurnIdle)
	c.log.Warn().Str("error", payload.Error).Msg("Server reported chat error")
	err := &ChatError{Message: payload.Error}
	c.release(err)
	c.fail(err)
}

func (c *Controller) handleHistory(data json.RawMessage) {
	var payload protocol.HistoryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.log.Warn().Err(err).Msg("Ignoring malformed history payload")
		return
	}

	c.messages.OnHistory(payload.Records)
	c.release(nil)
}

func (c *Controller) handleDisconnect() {
	c.release(ErrInterrupted)
	if c.Turn() == TurnIdle {
		return
	}
	c.messages.ForceClose()
	c.setTurn(TurnIdle)
	c.fail(ErrInterrupted)
}

func (c *Controller) setTurn(next TurnState) {
	c.mu.Lock()
	prev := c.turn
	c.turn = next
	c.mu.Unlock()

	if prev == next {
		return
	}
	c.log.Trace().Str("from", string(prev)).Str("to", string(next)).Msg("Turn transition")
	if c.opts.OnTurn != nil {
		c.opts.OnTurn(next)
	}
}

func (c *Controller) fail(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

func (c *Controller) useSession(sessionID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sessionID == "" {
		return c.sessionID
	}
	c.sessionID = sessionID
	return sessionID
}

func (c *Controller) connected() bool {
	return c.transport.State().Status == transport.StatusConnected
}

// release ends every pending history wait with err.
func (c *Controller) release(err error) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, ch := range waiters {
		ch <- err
	}
}

func (c *Controller) dropWaiter(ch chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
