package transport

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// ConnectionState is a snapshot of the manager's connection. Identity is only
// set while Status is StatusConnected.
type ConnectionState struct {
	Status    Status `json:"status"`
	Identity  string `json:"identity,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

var (
	ErrNotConnected       = errors.New("transport: not connected")
	ErrReconnectExhausted = errors.New("transport: reconnection attempts exhausted")
	ErrInvalidEndpoint    = errors.New("transport: invalid endpoint")
)

// ConnectError describes one failed connection attempt.
type ConnectError struct {
	Attempt    int
	StatusCode int
	Err        error
}

func (e *ConnectError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connect attempt %d failed (status %d): %v", e.Attempt, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("connect attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
