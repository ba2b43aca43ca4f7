// ABOUTME: Owns the single persistent push channel for one agent identity.
// ABOUTME: Handles dialing, bounded reconnection, heartbeat discard and frame fan-out.

package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/helpdesk-console/internal/dedupe"
	"github.com/2389/helpdesk-console/internal/wire"
)

// Connection errors
var (
	// ErrNotConnected means a send was attempted while the channel is down.
	// Callers treat this as a silent failure: the message is not queued.
	ErrNotConnected = errors.New("not connected")

	// ErrReconnectExhausted means the retry budget is spent. The operator
	// must trigger a manual reconnect.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrAlreadyRunning means Start was called while the manager is running.
	ErrAlreadyRunning = errors.New("connection manager already running")
)

// State is the connection lifecycle state. It is owned exclusively by the
// Manager; other components only read it.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// subscriberBufferSize is the channel buffer for each frame subscriber.
	subscriberBufferSize = 64

	// seenTTL/seenMaxSize bound the replay-dedupe cache. Frames older than
	// the TTL are re-fetched by the backstop poll anyway.
	seenTTL     = 10 * time.Minute
	seenMaxSize = 4096
)

// StateListener is notified on every state transition. err is non-nil only
// for operator-facing failures (retry budget exhausted, abnormal close).
type StateListener func(state State, err error)

// Options configures a Manager.
type Options struct {
	WSBase  string // e.g. wss://support.example.com
	AgentID string
	Token   string // bearer token sent during the handshake

	ReconnectDelay time.Duration
	MaxAttempts    int

	Logger *slog.Logger
}

// Manager maintains exactly one live push channel per signed-in agent and
// transparently recovers from drops. It is an explicit service object:
// callers hold a reference and use Subscribe/Send/State as its only surface.
type Manager struct {
	url            string
	agentID        string
	header         http.Header
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	maxAttempts    int
	logger         *slog.Logger
	seen           *dedupe.Cache

	mu          sync.RWMutex
	state       State
	ws          *websocket.Conn
	subscribers map[string]chan *wire.Frame
	onState     StateListener
	cancel      context.CancelFunc
	done        chan struct{}
	running     bool

	// writeMu serializes writes; the websocket allows one concurrent writer.
	writeMu sync.Mutex
}

// NewManager creates a Manager for the given agent identity. The manager
// does not dial until Start is called.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 5
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	return &Manager{
		url:            fmt.Sprintf("%s/ws/%s", opts.WSBase, opts.AgentID),
		agentID:        opts.AgentID,
		header:         header,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: opts.ReconnectDelay,
		maxAttempts:    opts.MaxAttempts,
		logger:         logger.With("component", "conn", "agent_id", opts.AgentID),
		seen:           dedupe.New(seenTTL, seenMaxSize),
		state:          StateDisconnected,
		subscribers:    make(map[string]chan *wire.Frame),
	}
}

// OnStateChange registers the state listener. Call before Start.
func (m *Manager) OnStateChange(fn StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onState = fn
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Start dials the backend and runs the read loop until the context is
// cancelled, the server closes normally, or the retry budget is exhausted.
// After the run loop exits, Start may be called again (manual reconnect).
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.run(runCtx)
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()
	return nil
}

// Close tears the connection down cleanly and stops the run loop.
func (m *Manager) Close() {
	m.mu.Lock()
	ws := m.ws
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if ws != nil {
		m.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "console shutdown"), deadline)
		m.writeMu.Unlock()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	m.seen.Close()
}

// run is the connect/read/retry loop. Retries use a fixed delay and a
// bounded attempt count; a normal server close is terminal.
func (m *Manager) run(ctx context.Context) {
	retries := 0

	for {
		if ctx.Err() != nil {
			m.setState(StateDisconnected, nil)
			return
		}

		m.setState(StateConnecting, nil)
		ws, resp, err := m.dialer.DialContext(ctx, m.url, m.header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}

		if err == nil {
			retries = 0
			m.mu.Lock()
			m.ws = ws
			m.mu.Unlock()
			m.setState(StateConnected, nil)

			normal := m.readLoop(ctx, ws)

			m.mu.Lock()
			m.ws = nil
			m.mu.Unlock()

			if normal || ctx.Err() != nil {
				m.setState(StateDisconnected, nil)
				return
			}
			m.setState(StateError, errors.New("connection lost"))
		} else {
			if ctx.Err() != nil {
				m.setState(StateDisconnected, nil)
				return
			}
			m.logger.Warn("dial failed", "error", err)
			m.setState(StateError, err)
		}

		if retries >= m.maxAttempts {
			m.logger.Error("reconnect attempts exhausted", "attempts", retries)
			m.setState(StateDisconnected, ErrReconnectExhausted)
			return
		}
		retries++
		m.logger.Info("scheduling reconnect",
			"attempt", retries,
			"max_attempts", m.maxAttempts,
			"delay", m.reconnectDelay,
		)

		select {
		case <-time.After(m.reconnectDelay):
		case <-ctx.Done():
			m.setState(StateDisconnected, nil)
			return
		}
	}
}

// readLoop consumes frames until the connection drops. Returns true when
// the close was normal (no retry wanted), false otherwise.
func (m *Manager) readLoop(ctx context.Context, ws *websocket.Conn) bool {
	// Close the socket when the context is cancelled to unblock ReadMessage.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				m.logger.Info("server closed connection normally")
				return true
			}
			m.logger.Warn("connection lost", "error", err)
			return false
		}
		m.handleFrame(data)
	}
}

// handleFrame decodes one raw frame and fans it out. Malformed frames are
// logged and dropped; they must never stop frame processing.
func (m *Manager) handleFrame(data []byte) {
	frame, err := wire.Decode(data)
	if err != nil {
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	switch frame.Kind() {
	case wire.KindHeartbeat:
		// Keepalive only; resets no visible state.
		return
	case wire.KindUnknown:
		m.logger.Warn("dropping frame with unrecognized shape")
		return
	case wire.KindChatMessage:
		if frame.ID != 0 && m.seen.CheckAndMark(dedupe.MessageKey(frame.ChatID, frame.ID)) {
			m.logger.Debug("dropping replayed frame",
				"chat_id", frame.ChatID, "message_id", frame.ID)
			return
		}
	}

	m.publish(frame)
}

// publish delivers a frame to all subscribers. Non-blocking: frames are
// dropped for subscribers whose channels are full.
func (m *Manager) publish(frame *wire.Frame) {
	m.mu.RLock()
	targets := make([]chan *wire.Frame, 0, len(m.subscribers))
	for _, ch := range m.subscribers {
		targets = append(targets, ch)
	}
	m.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- frame:
		default:
			m.logger.Debug("dropped frame for slow subscriber")
		}
	}
}

// Subscribe registers a subscriber for inbound frames. Returns the frame
// channel and a subscription ID. The subscription is cleaned up when ctx
// is cancelled.
func (m *Manager) Subscribe(ctx context.Context) (<-chan *wire.Frame, string) {
	subID := uuid.New().String()
	ch := make(chan *wire.Frame, subscriberBufferSize)

	m.mu.Lock()
	m.subscribers[subID] = ch
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (m *Manager) Unsubscribe(subID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.subscribers[subID]; ok {
		delete(m.subscribers, subID)
		close(ch)
	}
}

// Send transmits an outbound message frame. It fails with ErrNotConnected
// when the channel is down; the message is not queued for later delivery.
func (m *Manager) Send(msg wire.OutboundMessage) error {
	m.mu.RLock()
	ws, state := m.ws, m.state
	m.mu.RUnlock()

	if state != StateConnected || ws == nil {
		m.logger.Warn("send dropped: not connected", "state", state.String())
		return ErrNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := ws.WriteJSON(msg); err != nil {
		m.logger.Warn("send failed", "error", err)
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// setState records a transition and notifies the listener outside the lock.
func (m *Manager) setState(state State, err error) {
	m.mu.Lock()
	if m.state == state && err == nil {
		m.mu.Unlock()
		return
	}
	m.state = state
	listener := m.onState
	m.mu.Unlock()

	m.logger.Debug("state changed", "state", state.String())
	if listener != nil {
		listener(state, err)
	}
}
