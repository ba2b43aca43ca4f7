// ABOUTME: Coordinates the session core: selection lifecycle, frame dispatch and force-close.
// ABOUTME: Owns the single active timeout monitor and the post-close refresh debounce.

package console

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/helpdesk-console/internal/notify"
	"github.com/2389/helpdesk-console/internal/registry"
	"github.com/2389/helpdesk-console/internal/stream"
	"github.com/2389/helpdesk-console/internal/timeout"
	"github.com/2389/helpdesk-console/internal/wire"
)

// Backend is the slice of the REST client the console itself needs; the
// registry and stream talk to the backend through their own interfaces.
type Backend interface {
	TimeoutStatus(ctx context.Context, chatID string) (*wire.TimeoutStatus, error)
	TimeoutClose(ctx context.Context, chatID string) error
	SetOnline(ctx context.Context) error
	SetOffline(ctx context.Context) error
}

// FrameSource delivers inbound push frames.
type FrameSource interface {
	Subscribe(ctx context.Context) (<-chan *wire.Frame, string)
}

// Options configures a Console.
type Options struct {
	AgentID  string
	Backend  Backend
	Frames   FrameSource
	Registry *registry.Registry
	Stream   *stream.Stream
	Relay    *notify.Relay

	TimeoutPollInterval time.Duration
	// RefreshDebounce delays the reconciling session refresh after a
	// successful force-close, letting the backend settle first.
	RefreshDebounce time.Duration

	Logger *slog.Logger
}

// Console ties the session core together. It routes push frames to the
// registry, stream and relay, and drives the per-selection timeout monitor.
type Console struct {
	agentID         string
	backend         Backend
	frames          FrameSource
	registry        *registry.Registry
	stream          *stream.Stream
	relay           *notify.Relay
	timeoutInterval time.Duration
	refreshDebounce time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	monitor *timeout.Monitor
	status  *wire.TimeoutStatus
}

// New creates a Console.
func New(opts Options) *Console {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TimeoutPollInterval == 0 {
		opts.TimeoutPollInterval = 10 * time.Second
	}
	if opts.RefreshDebounce == 0 {
		opts.RefreshDebounce = 500 * time.Millisecond
	}
	return &Console{
		agentID:         opts.AgentID,
		backend:         opts.Backend,
		frames:          opts.Frames,
		registry:        opts.Registry,
		stream:          opts.Stream,
		relay:           opts.Relay,
		timeoutInterval: opts.TimeoutPollInterval,
		refreshDebounce: opts.RefreshDebounce,
		logger:          logger.With("component", "console"),
	}
}

// Run starts the background loops and consumes push frames until ctx is
// cancelled. It blocks; callers usually run it in a goroutine.
func (c *Console) Run(ctx context.Context) {
	go c.registry.RunPolling(ctx)
	go c.stream.RunBackstop(ctx)

	frames, _ := c.frames.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			c.dispatch(ctx, frame)
		}
	}
}

// dispatch routes one inbound frame by shape. Heartbeats and malformed
// frames never reach here; the connection layer drops them.
func (c *Console) dispatch(ctx context.Context, frame *wire.Frame) {
	switch frame.Kind() {
	case wire.KindUserConnected:
		c.relay.HandleUserConnected(ctx, frame)
	case wire.KindChatMessage:
		c.stream.ApplyPush(frame)
		chatID, counted := c.registry.ApplyInbound(frame, c.stream.Selected())
		if counted {
			c.logger.Debug("unread incremented", "chat_id", chatID)
		}
	}
}

// SelectSession opens a session: the previous selection's timeout monitor
// is stopped before anything else, the message log is re-fetched, unread is
// cleared, and a fresh monitor starts for non-ended sessions. ctx must
// outlive the selection; the monitor polls on it.
func (c *Console) SelectSession(ctx context.Context, chatID string) error {
	session, ok := c.registry.Get(chatID)
	if !ok {
		return fmt.Errorf("unknown session %q", chatID)
	}

	c.stopMonitor()

	if err := c.stream.Select(ctx, session); err != nil {
		// The selection stands; the backstop re-fetch will fill the log.
		c.logger.Warn("initial message fetch failed", "chat_id", chatID, "error", err)
	}

	if err := c.registry.MarkRead(ctx, chatID); err != nil {
		c.logger.Warn("mark read failed", "chat_id", chatID, "error", err)
	}

	if !session.IsEnded {
		mon := timeout.New(chatID, c.backend, c.timeoutInterval, c.handleStatus, c.logger)
		c.mu.Lock()
		c.monitor = mon
		c.mu.Unlock()
		mon.Start(ctx)
	}

	return nil
}

// ClearSelection closes the open session view and stops its monitor.
func (c *Console) ClearSelection() {
	c.stopMonitor()
	c.stream.Clear()
}

// stopMonitor tears down the active monitor and drops its last status.
func (c *Console) stopMonitor() {
	c.mu.Lock()
	mon := c.monitor
	c.monitor = nil
	c.status = nil
	c.mu.Unlock()

	if mon != nil {
		mon.Stop()
	}
}

// handleStatus receives monitor results. A result for a session that is no
// longer selected is stale and discarded.
func (c *Console) handleStatus(chatID string, status *wire.TimeoutStatus) {
	if c.stream.Selected() != chatID {
		return
	}
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()

	if status.IsTimeout {
		c.logger.Info("session eligible for timeout close", "chat_id", chatID)
	}
}

// TimeoutStatus returns the latest status for the selected session, or nil
// if none has been fetched yet.
func (c *Console) TimeoutStatus() *wire.TimeoutStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == nil {
		return nil
	}
	out := *c.status
	return &out
}

// MonitorFor reports whether a timeout monitor is running and for which
// session.
func (c *Console) MonitorFor() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.monitor == nil {
		return "", false
	}
	return c.monitor.ChatID(), c.monitor.Running()
}

// SendMessage sends to the selected session's user.
func (c *Console) SendMessage(content string) (wire.ChatMessage, error) {
	return c.stream.Send(content)
}

// TimeoutEndChat force-closes the selected session. One shot: on failure
// nothing changes locally and the operator must trigger it again. On
// success the session is marked ended immediately and a reconciling
// refresh runs after a short debounce.
func (c *Console) TimeoutEndChat(ctx context.Context) error {
	chatID := c.stream.Selected()
	if chatID == "" {
		return stream.ErrNoSession
	}

	if err := c.backend.TimeoutClose(ctx, chatID); err != nil {
		c.logger.Warn("timeout close failed", "chat_id", chatID, "error", err)
		return err
	}

	c.registry.MarkEnded(chatID, time.Now())
	c.stream.SetEnded(chatID)
	c.ClearSelection()
	c.logger.Info("session force-closed", "chat_id", chatID)

	time.AfterFunc(c.refreshDebounce, func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.registry.Refresh(refreshCtx); err != nil {
			c.logger.Warn("refresh after close failed", "error", err)
		}
	})

	return nil
}

// SetOnline announces the agent as available for new conversations.
func (c *Console) SetOnline(ctx context.Context) error {
	return c.backend.SetOnline(ctx)
}

// SetOffline announces the agent as unavailable.
func (c *Console) SetOffline(ctx context.Context) error {
	return c.backend.SetOffline(ctx)
}

// Alerts returns the live notification alerts.
func (c *Console) Alerts() []notify.Alert {
	return c.relay.Alerts()
}
