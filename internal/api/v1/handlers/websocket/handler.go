package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/internal/services"
	"github.com/deepgram/wayfinder/internal/services/oauth"
	"github.com/deepgram/wayfinder/pkg/httpext"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// turnQueue bounds how many chat messages may wait behind the one being
// answered.
const turnQueue = 8

type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

var DefaultTimeouts = TimeoutConfig{
	PongWait:   60 * time.Second,
	PingPeriod: 54 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// Handler serves the chat WebSocket.
type Handler struct {
	services *services.Services
	timeouts TimeoutConfig
	upgrader websocket.Upgrader
}

func NewHandler(svc *services.Services, timeouts TimeoutConfig) *Handler {
	return &Handler{
		services: svc,
		timeouts: timeouts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := logger.For(logger.HANDLER)

	tokenString := oauth.ExtractToken(r)
	if tokenString == "" {
		httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := oauth.ValidateToken(tokenString)
	if err != nil {
		httpext.JsonError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	release := h.services.TrackConnection()
	defer release()

	c := &connection{
		conn:      conn,
		services:  h.services,
		timeouts:  h.timeouts,
		sessionID: claims.SessionID,
		turns:     make(chan protocol.MessagePayload, turnQueue),
		log:       l.With().Str("session_id", claims.SessionID).Logger(),
	}
	c.serve(context.Background())
}

type connection struct {
	conn      *websocket.Conn
	services  *services.Services
	timeouts  TimeoutConfig
	sessionID string
	turns     chan protocol.MessagePayload
	log       zerolog.Logger

	writeMu sync.Mutex
}

func (c *connection) serve(parent context.Context) {
	defer c.conn.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c.log.Info().Int("connections", c.services.Connections()).Msg("WebSocket connected")

	if err := c.send(protocol.EventConnect, protocol.ConnectPayload{ID: c.sessionID}); err != nil {
		return
	}

	// Set up ping/pong handlers
	c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.keepalive(ctx)
	}()
	go func() {
		defer wg.Done()
		c.answer(ctx)
	}()

	c.read(ctx)

	cancel()
	close(c.turns)
	c.conn.Close()
	wg.Wait()
	c.log.Info().Msg("WebSocket disconnected")
}

func (c *connection) read(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("Unexpected WebSocket closure")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError("Malformed message")
			continue
		}

		c.dispatch(ctx, env)
	}
}

func (c *connection) dispatch(ctx context.Context, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventChatMessage:
		var payload protocol.MessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.Message == "" {
			c.sendError("Message cannot be empty")
			return
		}
		if payload.SessionID != "" && payload.SessionID != c.sessionID {
			c.sendError("Session does not belong to connection")
			return
		}
		payload.SessionID = c.sessionID
		select {
		case c.turns <- payload:
		default:
			c.sendError("Too many pending messages")
		}

	case protocol.EventChatHistoryRequest:
		sessionID, ok := c.requestedSession(env.Data)
		if !ok {
			return
		}
		records, err := c.services.GetHistoryService().List(ctx, sessionID)
		if err != nil {
			c.sendError("Failed to load history")
			return
		}
		c.send(protocol.EventChatHistory, protocol.HistoryPayload{SessionID: sessionID, Records: records})

	case protocol.EventChatClear:
		sessionID, ok := c.requestedSession(env.Data)
		if !ok {
			return
		}
		if err := c.services.GetHistoryService().Clear(ctx, sessionID); err != nil {
			c.sendError("Failed to clear history")
		}

	case protocol.EventSessionEnd:
		c.log.Info().Msg("Session ended by client")

	case protocol.EventPing:
		c.send(protocol.EventPong, nil)

	case protocol.EventPong:

	default:
		c.log.Debug().Str("event", env.Event).Msg("Ignoring unknown event")
	}
}

// answer streams replies to queued chat messages one at a time.
func (c *connection) answer(ctx context.Context) {
	for payload := range c.turns {
		c.turn(ctx, payload)
	}
}

func (c *connection) turn(ctx context.Context, payload protocol.MessagePayload) {
	start := time.Now()
	if err := c.send(protocol.EventChatStart, protocol.ContentPayload{Type: protocol.ContentStart, SessionID: payload.SessionID}); err != nil {
		return
	}

	history, err := c.services.GetHistoryService().Recent(ctx, payload.SessionID)
	if err != nil {
		c.log.Warn().Err(err).Msg("Answering without history")
		history = nil
	}

	reply, err := c.services.GetResponder().Stream(ctx, history, payload.Message, func(delta string) error {
		return c.send(protocol.EventChatContent, protocol.ContentPayload{Type: protocol.ContentContent, Data: delta})
	})
	if err != nil {
		c.log.Error().Err(err).Msg("Failed to generate reply")
		c.sendError("Failed to generate reply")
		return
	}

	if err := c.send(protocol.EventChatEnd, protocol.ContentPayload{Type: protocol.ContentEnd, SessionID: payload.SessionID}); err != nil {
		return
	}

	record := protocol.HistoryRecord{
		SessionID:        payload.SessionID,
		UserMessage:      payload.Message,
		AssistantMessage: reply,
		Timestamp:        time.Now().UTC(),
	}
	if err := c.services.GetHistoryService().Append(ctx, record); err != nil {
		c.log.Warn().Err(err).Msg("Reply not saved to history")
	}

	c.log.Debug().Dur("elapsed", time.Since(start)).Int("reply_bytes", len(reply)).Msg("Turn answered")
}

func (c *connection) keepalive(ctx context.Context) {
	ticker := time.NewTicker(c.timeouts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.timeouts.WriteWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// requestedSession resolves the session a frame targets. A connection may
// only reach the session its token was issued for.
func (c *connection) requestedSession(data json.RawMessage) (string, bool) {
	var payload protocol.SessionPayload
	if len(data) > 0 {
		json.Unmarshal(data, &payload)
	}
	if payload.SessionID != "" && payload.SessionID != c.sessionID {
		c.sendError("Session does not belong to connection")
		return "", false
	}
	return c.sessionID, true
}

func (c *connection) send(event string, payload interface{}) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
	return c.conn.WriteJSON(env)
}

func (c *connection) sendError(message string) {
	c.send(protocol.EventChatError, protocol.ErrorPayload{Error: message})
}
