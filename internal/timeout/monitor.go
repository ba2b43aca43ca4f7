// ABOUTME: Per-selection poller asking the backend whether a session may be force-closed.
// ABOUTME: Lifecycle is strictly scoped to one selected, non-ended session.

package timeout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/helpdesk-console/internal/wire"
)

// StatusFetcher retrieves a session's timeout eligibility.
type StatusFetcher interface {
	TimeoutStatus(ctx context.Context, chatID string) (*wire.TimeoutStatus, error)
}

// StatusFunc receives every fetched status together with the chat id the
// monitor was opened for. Callers compare that id against their current
// selection at delivery time to discard stale results.
type StatusFunc func(chatID string, status *wire.TimeoutStatus)

// Monitor polls the timeout status of one session. A Monitor is built for
// a single selection and never reused: switching sessions stops this one
// and starts a fresh one, so there is never more than one active timer.
type Monitor struct {
	chatID   string
	fetcher  StatusFetcher
	interval time.Duration
	onStatus StatusFunc
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// New creates a Monitor for chatID. onStatus is invoked on the polling
// goroutine; it must not block.
func New(chatID string, fetcher StatusFetcher, interval time.Duration, onStatus StatusFunc, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		chatID:   chatID,
		fetcher:  fetcher,
		interval: interval,
		onStatus: onStatus,
		logger:   logger.With("component", "timeout", "chat_id", chatID),
	}
}

// ChatID returns the session this monitor was opened for.
func (m *Monitor) ChatID() string {
	return m.chatID
}

// Start begins polling: an immediate check fires before the first interval
// tick, so the operator does not wait a full period to see a just-expired
// status. Start is a no-op if the monitor is already running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	go m.run(runCtx)
}

// Stop cancels the monitor's timer. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.running = false
}

// Running reports whether the monitor's timer is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run(ctx context.Context) {
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	status, err := m.fetcher.TimeoutStatus(ctx, m.chatID)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("timeout status check failed", "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		// Cancelled while the request was in flight; the selection has
		// moved on and this status no longer applies.
		return
	}
	m.onStatus(m.chatID, status)
}
