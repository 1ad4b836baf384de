// Package protocol defines the JSON envelope and event payloads exchanged
// between the conversation client and the assistant backend over a
// WebSocket.
package protocol

import (
	"encoding/json"
	"time"
)

// Wire events. Frames are JSON text messages of the form
// {"event": "<name>", "data": <payload>}.
const (
	EventConnect            = "connect"
	EventChatMessage        = "chat_message"
	EventChatStart          = "chat_start"
	EventChatContent        = "chat_content"
	EventChunk              = "chunk"
	EventChatEnd            = "chat_end"
	EventComplete           = "complete"
	EventChatError          = "chat_error"
	EventChatHistoryRequest = "chat_history_request"
	EventChatHistory        = "chat_history"
	EventChatClear          = "chat_clear"
	EventSessionEnd         = "session_end"
	EventPing               = "ping"
	EventPong               = "pong"
)

// Local events raised by the client transport; they never travel on the wire
// except EventConnect, which doubles as the server handshake frame.
const (
	EventDisconnect      = "disconnect"
	EventConnectError    = "connect_error"
	EventReconnectFailed = "reconnect_failed"
)

// Content payload types.
const (
	ContentStart   = "start"
	ContentContent = "content"
	ContentEnd     = "end"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope. A nil payload produces an
// envelope without data.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}

	switch p := payload.(type) {
	case json.RawMessage:
		env.Data = p
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = data
	}
	return env, nil
}

// ConnectPayload is the server's handshake frame carrying the identity it
// assigned to the connection.
type ConnectPayload struct {
	ID string `json:"id"`
}

type MessagePayload struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type ContentPayload struct {
	Type      string `json:"type"`
	Data      string `json:"data,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

type SessionPayload struct {
	SessionID string `json:"session_id,omitempty"`
}

type HistoryPayload struct {
	SessionID string          `json:"session_id,omitempty"`
	Records   []HistoryRecord `json:"records"`
}

// HistoryRecord is one completed logical turn as stored by the backend.
type HistoryRecord struct {
	SessionID        string    `json:"session_id,omitempty"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	Timestamp        time.Time `json:"timestamp"`
}
