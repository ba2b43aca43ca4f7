// ABOUTME: Ordered, duplicate-free message log for the currently selected session.
// ABOUTME: Merges initial fetch, periodic re-fetch and live push; owns the optimistic send path.

package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/helpdesk-console/internal/conn"
	"github.com/2389/helpdesk-console/internal/wire"
)

// Stream errors
var (
	ErrNoSession    = errors.New("no session selected")
	ErrSessionEnded = errors.New("session has ended")
)

// Fetcher retrieves the authoritative message log for a session.
type Fetcher interface {
	ListMessages(ctx context.Context, chatID string) ([]wire.ChatMessage, error)
}

// Transport is the slice of the Connection Manager the stream needs to
// emit outbound messages.
type Transport interface {
	Send(msg wire.OutboundMessage) error
	State() conn.State
}

// Archiver persists message snapshots locally. Optional; failures are
// logged, never propagated.
type Archiver interface {
	SaveMessages(ctx context.Context, chatID string, messages []wire.ChatMessage) error
}

// Stream maintains the message log for exactly one session at a time.
// Every fetch carries the chat id it was issued for and is compared against
// the current selection at resolution time, so a late response for a
// no-longer-selected session is detected and dropped.
type Stream struct {
	agentID   string
	fetcher   Fetcher
	transport Transport
	archiver  Archiver
	backstop  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	chatID string
	userID string
	ended  bool
	log    []wire.ChatMessage
}

// New creates a Stream. archiver may be nil.
func New(agentID string, fetcher Fetcher, transport Transport, archiver Archiver, backstop time.Duration, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		agentID:   agentID,
		fetcher:   fetcher,
		transport: transport,
		archiver:  archiver,
		backstop:  backstop,
		logger:    logger.With("component", "stream"),
	}
}

// Select switches the stream to a session: the previous log is discarded
// and an authoritative fetch replaces it wholesale, superseding any
// optimistic entries accumulated before it resolves.
func (s *Stream) Select(ctx context.Context, session wire.ChatSession) error {
	s.mu.Lock()
	s.chatID = session.ChatID
	s.userID = session.UserID
	s.ended = session.IsEnded
	s.log = nil
	s.mu.Unlock()

	return s.refetch(ctx, session.ChatID)
}

// Clear drops the selection and the in-memory log.
func (s *Stream) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = ""
	s.userID = ""
	s.ended = false
	s.log = nil
}

// Selected returns the chat id of the current selection, or "".
func (s *Stream) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Messages returns a snapshot of the displayed log.
func (s *Stream) Messages() []wire.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]wire.ChatMessage, len(s.log))
	copy(out, s.log)
	return out
}

// refetch pulls the full log for chatID and installs it if, at resolution
// time, that session is still the selected one. Stale results — success or
// failure — are discarded silently.
func (s *Stream) refetch(ctx context.Context, chatID string) error {
	messages, err := s.fetcher.ListMessages(ctx, chatID)

	s.mu.Lock()
	if s.chatID != chatID {
		s.mu.Unlock()
		s.logger.Debug("discarding stale fetch", "chat_id", chatID)
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.log = Merge(nil, messages, SourceSnapshot)
	s.mu.Unlock()

	if s.archiver != nil {
		if err := s.archiver.SaveMessages(ctx, chatID, messages); err != nil {
			s.logger.Warn("archiving messages failed", "error", err)
		}
	}
	return nil
}

// ApplyPush offers an inbound chat message frame to the stream. The frame
// is accepted only when it belongs to the selected session and was not
// self-originated: the sender already appended an optimistic copy on send.
// Returns whether the message was appended to the displayed log.
func (s *Stream) ApplyPush(frame *wire.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.chatID == "" {
		return false
	}
	if !frame.MatchesSession(s.chatID, s.userID, s.agentID) {
		return false
	}
	if frame.From == s.agentID {
		return false
	}

	before := len(s.log)
	s.log = Merge(s.log, []wire.ChatMessage{frame.Message()}, SourcePush)
	return len(s.log) > before
}

// Send emits a message to the selected session's user and appends an
// optimistic local copy immediately. Fire-and-forget: there is no retry
// and no delivery receipt; the periodic backstop re-fetch reconciles the
// placeholder id with backend truth.
func (s *Stream) Send(content string) (wire.ChatMessage, error) {
	s.mu.Lock()
	chatID, userID, ended := s.chatID, s.userID, s.ended
	s.mu.Unlock()

	if chatID == "" {
		return wire.ChatMessage{}, ErrNoSession
	}
	if ended {
		return wire.ChatMessage{}, ErrSessionEnded
	}
	if s.transport.State() != conn.StateConnected {
		return wire.ChatMessage{}, conn.ErrNotConnected
	}

	if err := s.transport.Send(wire.OutboundMessage{
		ReceiverID: userID,
		Content:    content,
		ChatID:     chatID,
	}); err != nil {
		return wire.ChatMessage{}, err
	}

	now := time.Now()
	msg := wire.ChatMessage{
		// Placeholder id until the next authoritative fetch reconciles it.
		// Wall-clock derived: unique enough to avoid same-tick collision,
		// not formally collision-free.
		ID:         now.UnixMilli(),
		SenderID:   s.agentID,
		ReceiverID: userID,
		Content:    content,
		CreatedAt:  now,
		SenderType: wire.SenderCustomerService,
	}

	s.mu.Lock()
	if s.chatID == chatID {
		s.log = Merge(s.log, []wire.ChatMessage{msg}, SourceOptimistic)
	}
	s.mu.Unlock()

	return msg, nil
}

// SetEnded blocks further sends for the given session if it is selected.
func (s *Stream) SetEnded(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatID == chatID {
		s.ended = true
	}
}

// RunBackstop re-fetches the selected session's full log on every interval
// as a safety net against missed push frames, until ctx is cancelled.
func (s *Stream) RunBackstop(ctx context.Context) {
	ticker := time.NewTicker(s.backstop)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chatID := s.Selected()
			if chatID == "" {
				continue
			}
			if err := s.refetch(ctx, chatID); err != nil && ctx.Err() == nil {
				s.logger.Warn("backstop fetch failed", "chat_id", chatID, "error", err)
			}
		}
	}
}
