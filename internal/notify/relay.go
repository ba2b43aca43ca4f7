// ABOUTME: Surfaces cross-session push events as transient operator alerts.
// ABOUTME: New-conversation events also nudge the Session Registry to refresh early.

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/helpdesk-console/internal/wire"
)

// Refresher triggers an out-of-band session list refresh.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Alert is a transient operator-facing notification. It auto-dismisses
// after the relay's configured duration.
type Alert struct {
	ID        string
	UserID    string
	UserName  string
	Message   string
	CreatedAt time.Time
}

// Relay consumes cross-session push events: events not tied to whichever
// session is currently open. It shares the physical connection with the
// chat stream; frames are distinguished purely by shape.
type Relay struct {
	dismiss   time.Duration
	refresher Refresher
	logger    *slog.Logger

	mu      sync.Mutex
	alerts  map[string]Alert
	onAlert func(Alert)
}

// New creates a Relay. refresher may be nil, in which case new-conversation
// events only raise alerts and the next poll picks up the session.
func New(dismiss time.Duration, refresher Refresher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		dismiss:   dismiss,
		refresher: refresher,
		logger:    logger.With("component", "notify"),
		alerts:    make(map[string]Alert),
	}
}

// OnAlert registers a callback invoked for every new alert. Must be set
// before frames start flowing.
func (r *Relay) OnAlert(fn func(Alert)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAlert = fn
}

// HandleUserConnected raises a transient alert for a newly started
// conversation and asks the registry to refresh ahead of its next poll.
func (r *Relay) HandleUserConnected(ctx context.Context, frame *wire.Frame) {
	if frame.UserInfo == nil {
		r.logger.Warn("dropping user_connected frame without user_info")
		return
	}

	name := frame.UserInfo.Name
	if name == "" {
		name = frame.UserInfo.ID
	}

	alert := Alert{
		ID:        uuid.New().String(),
		UserID:    frame.UserInfo.ID,
		UserName:  name,
		Message:   fmt.Sprintf("%s started a conversation", name),
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.alerts[alert.ID] = alert
	callback := r.onAlert
	r.mu.Unlock()

	r.logger.Info("new conversation", "user_id", alert.UserID, "user_name", alert.UserName)

	time.AfterFunc(r.dismiss, func() {
		r.dismissAlert(alert.ID)
	})

	if callback != nil {
		callback(alert)
	}

	if r.refresher != nil {
		go func() {
			if err := r.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("refresh after user_connected failed", "error", err)
			}
		}()
	}
}

// Alerts returns the live (not yet dismissed) alerts, oldest first.
func (r *Relay) Alerts() []Alert {
	r.mu.Lock()
	out := make([]Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *Relay) dismissAlert(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.alerts, id)
}
