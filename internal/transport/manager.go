package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/internal/protocol"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const transportType = "websocket"

// Options holds the reconnection and keepalive settings of a Manager.
type Options struct {
	// ReconnectAttempts is the number of retries after the first failed
	// attempt, and after a live connection drops.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	ReconnectJitter   float64
	PingInterval      time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
	HandshakeTimeout  time.Duration
}

// DefaultOptions mirrors the documented configuration defaults.
var DefaultOptions = Options{
	ReconnectAttempts: 5,
	ReconnectDelay:    time.Second,
	ReconnectDelayMax: 5 * time.Second,
	ReconnectJitter:   0.5,
	PingInterval:      25 * time.Second,
	PongWait:          60 * time.Second,
	WriteWait:         10 * time.Second,
	HandshakeTimeout:  20 * time.Second,
}

// OptionsFromConfig maps the transport section of the configuration onto
// manager options.
func OptionsFromConfig(cfg config.TransportConfig) Options {
	return Options{
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		ReconnectDelayMax: cfg.ReconnectDelayMax,
		ReconnectJitter:   cfg.ReconnectJitter,
		PingInterval:      cfg.PingInterval,
		PongWait:          cfg.PongWait,
		WriteWait:         cfg.WriteWait,
		HandshakeTimeout:  cfg.HandshakeTimeout,
	}
}

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Manager owns one persistent WebSocket connection: its state, its event
// handlers and its bounded reconnection loop.
//
// Handlers run on the loop goroutine in arrival order. A handler may call
// Connect or Disconnect; the superseded loop then exits once the handler
// returns.
type Manager struct {
	opts   Options
	dialer Dialer
	log    zerolog.Logger
	events *emitter

	// lifecycle serializes Connect and Disconnect.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	state     ConnectionState
	endpoint  string
	token     string
	conn      *websocket.Conn
	loop      *loop
	exhausted bool

	writeMu sync.Mutex
}

// loop is one run of the connection loop started by Connect.
type loop struct {
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	dispatching atomic.Bool
}

func newLoop() *loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &loop{ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// wait blocks until the loop has exited. It returns at once while the loop is
// inside a handler, since that handler may be the caller.
func (l *loop) wait() {
	if l == nil || l.dispatching.Load() {
		return
	}
	<-l.done
}

// NewManager creates a disconnected manager. A nil dialer uses a gorilla
// dialer honouring the handshake timeout and proxy environment.
func NewManager(opts Options, dialer Dialer) *Manager {
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}

	l := logger.For(logger.TRANSPORT)
	return &Manager{
		opts:   opts,
		dialer: dialer,
		log:    l,
		events: newEmitter(l),
		state:  ConnectionState{Status: StatusDisconnected},
	}
}

// State returns a snapshot of the connection state.
func (m *Manager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns the identity assigned by the server, or "" when not
// connected.
func (m *Manager) Identity() string {
	return m.State().Identity
}

// Connect starts connecting to endpointURL in the background. It returns nil
// immediately when already connecting or connected to the same endpoint with
// the same token; otherwise any existing connection is torn down first.
func (m *Manager) Connect(endpointURL, authToken string) error {
	u, err := url.Parse(endpointURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpointURL)
	}

	m.lifecycle.Lock()

	m.mu.RLock()
	active := m.loop != nil && m.state.Status != StatusError && m.state.Status != StatusDisconnected
	same := m.endpoint == endpointURL && m.token == authToken
	m.mu.RUnlock()

	if active && same {
		m.lifecycle.Unlock()
		m.log.Debug().Str("endpoint", endpointURL).Msg("Connect called while already active, ignoring")
		return nil
	}

	prev := m.stop()
	l := newLoop()

	m.mu.Lock()
	m.endpoint = endpointURL
	m.token = authToken
	m.loop = l
	m.exhausted = false
	m.state = ConnectionState{Status: StatusConnecting}
	m.mu.Unlock()

	m.log.Info().Str("endpoint", endpointURL).Str("transport", transportType).Msg("Connecting")
	go m.run(l, endpointURL, authToken)
	m.lifecycle.Unlock()

	prev.wait()
	return nil
}

// Disconnect removes every handler, cancels any reconnection in progress and
// closes the connection. It is safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.lifecycle.Lock()

	m.events.clear()
	prev := m.stop()

	m.mu.Lock()
	wasActive := m.state.Status != StatusDisconnected
	m.endpoint = ""
	m.token = ""
	m.exhausted = false
	m.state = ConnectionState{Status: StatusDisconnected}
	m.mu.Unlock()

	m.lifecycle.Unlock()

	prev.wait()
	if wasActive {
		m.log.Info().Msg("Disconnected")
	}
}

// stop detaches and cancels the current loop, if any, and returns it so the
// caller can wait for it after releasing the lifecycle lock. Callers hold the
// lifecycle lock.
func (m *Manager) stop() *loop {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.loop
	m.loop = nil
	m.conn = nil
	if l != nil {
		l.cancel()
	}
	return l
}

// update applies fn under the state lock unless ctx has ended. A cancelled
// loop never overwrites the state of its successor.
func (m *Manager) update(ctx context.Context, fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	fn()
	return true
}

func (m *Manager) dispatch(l *loop, event string, data json.RawMessage) {
	l.dispatching.Store(true)
	defer l.dispatching.Store(false)
	m.events.dispatch(event, data)
}

// On registers handler for event and returns a function that removes it.
func (m *Manager) On(event string, handler Handler) func() {
	return m.events.on(event, handler)
}

// Off removes every handler registered for event.
func (m *Manager) Off(event string) {
	m.events.off(event)
}

// Emit sends event with payload when connected. It reports whether the frame
// was written; nothing is queued while disconnected.
func (m *Manager) Emit(event string, payload interface{}) bool {
	m.mu.RLock()
	conn, status := m.conn, m.state.Status
	m.mu.RUnlock()

	if status != StatusConnected || conn == nil {
		m.log.Warn().Str("event", event).Str("status", string(status)).Msg("Dropping event, transport not connected")
		return false
	}

	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		m.log.Error().Err(err).Str("event", event).Msg("Failed to encode event payload")
		return false
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait)); err != nil {
		m.log.Warn().Err(err).Str("event", event).Msg("Failed to set write deadline")
		return false
	}
	if err := conn.WriteJSON(env); err != nil {
		m.log.Warn().Err(err).Str("event", event).Msg("Failed to write event")
		return false
	}
	return true
}

// AwaitConnected blocks until the connection is established, the retry
// budget is exhausted, or ctx ends.
func (m *Manager) AwaitConnected(ctx context.Context) error {
	connected := make(chan struct{}, 1)
	unsubscribe := m.On(protocol.EventConnect, func(json.RawMessage) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	m.mu.RLock()
	status, l, exhausted := m.state.Status, m.loop, m.exhausted
	m.mu.RUnlock()

	switch {
	case status == StatusConnected:
		return nil
	case exhausted:
		return ErrReconnectExhausted
	case l == nil:
		return ErrNotConnected
	}

	select {
	case <-connected:
		return nil
	case <-l.done:
		m.mu.RLock()
		defer m.mu.RUnlock()
		if m.state.Status == StatusConnected {
			return nil
		}
		if m.exhausted {
			return ErrReconnectExhausted
		}
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(l *loop, endpoint, token string) {
	defer close(l.done)
	ctx := l.ctx

	bo := m.newBackOff()
	attempt := 0
	retries := 0

	for {
		attempt++
		conn, err := m.dial(l, endpoint, token, attempt)
		if err == nil {
			bo.Reset()
			retries = 0
			reason := m.serve(l, conn)
			if ctx.Err() != nil || !m.dropped(l, conn, reason) {
				return
			}
		} else {
			if !m.failed(l, err) {
				return
			}
			if retries >= m.opts.ReconnectAttempts {
				m.giveUp(l, attempt)
				return
			}
		}

		retries++
		delay := bo.NextBackOff()
		if delay > m.opts.ReconnectDelayMax {
			delay = m.opts.ReconnectDelayMax
		}

		reconnecting := m.update(ctx, func() {
			m.state.Status = StatusReconnecting
			m.state.Identity = ""
		})
		if !reconnecting {
			return
		}

		m.log.Info().Int("retry", retries).Int("max_retries", m.opts.ReconnectAttempts).Dur("delay", delay).Msg("Scheduling reconnection")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     m.opts.ReconnectDelay,
		RandomizationFactor: m.opts.ReconnectJitter,
		Multiplier:          2,
		MaxInterval:         m.opts.ReconnectDelayMax,
	}
	b.Reset()
	return b
}

// dial opens the socket and reads the server's connect frame.
func (m *Manager) dial(l *loop, endpoint, token string, attempt int) (*websocket.Conn, error) {
	ctx := l.ctx
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	start := time.Now()
	conn, resp, err := m.dialer.DialContext(dialCtx, endpoint, header)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	m.log.Debug().
		Int("attempt", attempt).
		Str("transport", transportType).
		Int("handshake_status", statusCode).
		Dur("elapsed", time.Since(start)).
		Bool("ok", err == nil).
		Msg("Connection attempt finished")

	if err != nil {
		return nil, &ConnectError{Attempt: attempt, StatusCode: statusCode, Err: err}
	}

	env, err := m.readHandshake(conn)
	if err != nil {
		conn.Close()
		return nil, &ConnectError{Attempt: attempt, StatusCode: statusCode, Err: err}
	}

	var payload protocol.ConnectPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			conn.Close()
			return nil, &ConnectError{Attempt: attempt, StatusCode: statusCode, Err: fmt.Errorf("malformed connect payload: %w", err)}
		}
	}

	live := m.update(ctx, func() {
		m.conn = conn
		m.state = ConnectionState{Status: StatusConnected, Identity: payload.ID}
	})
	if !live {
		conn.Close()
		return nil, ctx.Err()
	}

	m.log.Info().
		Str("identity", payload.ID).
		Int("attempt", attempt).
		Dur("elapsed", time.Since(start)).
		Msg("Connected")

	m.dispatch(l, protocol.EventConnect, env.Data)
	return conn, nil
}

func (m *Manager) readHandshake(conn *websocket.Conn) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := conn.SetReadDeadline(time.Now().Add(m.opts.HandshakeTimeout)); err != nil {
		return env, err
	}
	if err := conn.ReadJSON(&env); err != nil {
		return env, fmt.Errorf("reading handshake: %w", err)
	}
	if env.Event != protocol.EventConnect {
		return env, fmt.Errorf("unexpected handshake event %q", env.Event)
	}
	return env, nil
}

// serve runs the read loop of a live connection until it fails or the loop
// is cancelled. Frames are dispatched in arrival order.
func (m *Manager) serve(l *loop, conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go m.keepalive(l.ctx, conn, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(m.opts.PongWait))

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.log.Warn().Err(err).Int("bytes", len(data)).Msg("Ignoring malformed frame")
			continue
		}

		if env.Event == protocol.EventPing {
			m.Emit(protocol.EventPong, nil)
		}

		m.log.Trace().Str("event", env.Event).Int("bytes", len(env.Data)).Msg("Received event")
		m.dispatch(l, env.Event, env.Data)
	}
}

// keepalive pings on PingInterval and closes the socket when ctx ends.
func (m *Manager) keepalive(ctx context.Context, conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(m.opts.WriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.log.Debug().Err(err).Msg("Ping failed")
				return
			}
		case <-ctx.Done():
			deadline := time.Now().Add(m.opts.WriteWait)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			conn.Close()
			return
		case <-stop:
			return
		}
	}
}

// failed records a failed attempt. It reports whether the loop should go on,
// which is false once the loop has been cancelled, including by a handler.
func (m *Manager) failed(l *loop, err error) bool {
	recorded := m.update(l.ctx, func() {
		m.conn = nil
		m.state = ConnectionState{Status: StatusError, LastError: err.Error()}
	})
	if !recorded {
		return false
	}

	m.log.Warn().Err(err).Msg("Connection attempt failed")
	m.dispatch(l, protocol.EventConnectError, errorData(err))
	return l.ctx.Err() == nil
}

// dropped closes a lost connection and reports whether the loop should
// reconnect.
func (m *Manager) dropped(l *loop, conn *websocket.Conn, reason error) bool {
	conn.Close()

	recorded := m.update(l.ctx, func() {
		if m.conn == conn {
			m.conn = nil
		}
		m.state = ConnectionState{Status: StatusReconnecting, LastError: reason.Error()}
	})
	if !recorded {
		return false
	}

	m.log.Warn().Err(reason).Msg("Connection lost")
	m.dispatch(l, protocol.EventDisconnect, errorData(reason))
	return l.ctx.Err() == nil
}

func (m *Manager) giveUp(l *loop, attempts int) {
	recorded := m.update(l.ctx, func() {
		m.exhausted = true
		m.state.Status = StatusError
		m.state.Identity = ""
	})
	if !recorded {
		return
	}

	m.log.Error().Int("attempts", attempts).Msg("Giving up on connection")
	m.dispatch(l, protocol.EventReconnectFailed, errorData(ErrReconnectExhausted))
}

func errorData(err error) json.RawMessage {
	data, _ := json.Marshal(protocol.ErrorPayload{Error: err.Error()})
	return data
}
