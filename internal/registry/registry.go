// ABOUTME: Authoritative in-memory list of the agent's sessions with unread counters.
// ABOUTME: Reconciled from periodic full polls and incremental push events.

package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/2389/helpdesk-console/internal/wire"
)

// Backend is the slice of the REST client the registry needs.
type Backend interface {
	ListSessions(ctx context.Context) ([]wire.ChatSession, error)
	MarkRead(ctx context.Context, chatID string) error
}

// Archiver persists session snapshots locally. Optional; failures are
// logged, never propagated.
type Archiver interface {
	SaveSessions(ctx context.Context, sessions []wire.ChatSession) error
}

// Registry is the single mutable source of truth for unread counts and
// open/ended state. No other component mutates session state directly.
type Registry struct {
	agentID      string
	backend      Backend
	archiver     Archiver
	pollInterval time.Duration
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*wire.ChatSession
}

// New creates a Registry for the given agent. archiver may be nil.
func New(agentID string, backend Backend, archiver Archiver, pollInterval time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		agentID:      agentID,
		backend:      backend,
		archiver:     archiver,
		pollInterval: pollInterval,
		logger:       logger.With("component", "registry"),
		sessions:     make(map[string]*wire.ChatSession),
	}
}

// Refresh fetches the full session list and replaces the registry
// wholesale. Safe to call concurrently with itself: when two refreshes
// overlap, the one that resolves last wins, even if it was issued first.
// That last-resolved-wins behavior is accepted; see the design notes.
func (r *Registry) Refresh(ctx context.Context) error {
	sessions, err := r.backend.ListSessions(ctx)
	if err != nil {
		return err
	}
	r.replace(sessions)

	if r.archiver != nil {
		if err := r.archiver.SaveSessions(ctx, sessions); err != nil {
			r.logger.Warn("archiving sessions failed", "error", err)
		}
	}
	return nil
}

// Seed loads a session snapshot without contacting the backend, typically
// from the local journal at startup. The next Refresh supersedes it.
func (r *Registry) Seed(sessions []wire.ChatSession) {
	r.replace(sessions)
}

// replace swaps in a fresh session map, guaranteeing one entry per chat_id.
func (r *Registry) replace(sessions []wire.ChatSession) {
	next := make(map[string]*wire.ChatSession, len(sessions))
	for i := range sessions {
		s := sessions[i]
		next[s.ChatID] = &s
	}

	r.mu.Lock()
	r.sessions = next
	r.mu.Unlock()

	r.logger.Debug("session list replaced", "count", len(next))
}

// RunPolling refreshes immediately, then on every poll interval, until the
// context is cancelled. Poll failures are logged and the loop continues.
func (r *Registry) RunPolling(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("session poll failed", "error", err)
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("session poll failed", "error", err)
			}
		}
	}
}

// ApplyInbound accounts an inbound chat message frame against unread
// counters. The counter is not incremented for the currently selected
// session: those messages are shown directly. Returns the resolved chat id
// (empty if no session matched) and whether a counter was incremented.
func (r *Registry) ApplyInbound(frame *wire.Frame, selectedChatID string) (string, bool) {
	if frame.ReceiverID != r.agentID || frame.From == r.agentID {
		return "", false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session := r.resolveLocked(frame)
	if session == nil {
		// Unknown session; the next poll picks it up.
		return "", false
	}
	if session.ChatID == selectedChatID {
		return session.ChatID, false
	}

	session.UnreadCount++
	return session.ChatID, true
}

// resolveLocked finds the session a frame belongs to. Frames carrying a
// chat_id are matched by key; legacy frames by the sending user.
func (r *Registry) resolveLocked(frame *wire.Frame) *wire.ChatSession {
	if frame.ChatID != "" {
		return r.sessions[frame.ChatID]
	}
	for _, s := range r.sessions {
		if s.UserID == frame.From {
			return s
		}
	}
	return nil
}

// MarkRead zeroes a session's unread counter and notifies the backend.
// The local zeroing is optimistic and is not rolled back on failure;
// unread counts are a UX aid, not a correctness-critical value.
func (r *Registry) MarkRead(ctx context.Context, chatID string) error {
	r.mu.Lock()
	if s, ok := r.sessions[chatID]; ok {
		s.UnreadCount = 0
	}
	r.mu.Unlock()

	return r.backend.MarkRead(ctx, chatID)
}

// MarkEnded flags a session as ended locally, ahead of the next Refresh,
// so a successful timeout-close does not flicker back to "open".
func (r *Registry) MarkEnded(chatID string, endedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[chatID]; ok {
		s.IsEnded = true
		s.EndedAt = &endedAt
	}
}

// Get returns a copy of one session.
func (r *Registry) Get(chatID string) (wire.ChatSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[chatID]
	if !ok {
		return wire.ChatSession{}, false
	}
	return *s, true
}

// Sessions returns a snapshot of all sessions, newest first.
func (r *Registry) Sessions() []wire.ChatSession {
	r.mu.RLock()
	out := make([]wire.ChatSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ChatID < out[j].ChatID
	})
	return out
}

// TotalUnread is the sum of all sessions' unread counters.
func (r *Registry) TotalUnread() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, s := range r.sessions {
		total += s.UnreadCount
	}
	return total
}
