// ABOUTME: Backend contract shapes: REST records and push-channel frames.
// ABOUTME: Decodes inbound frames and classifies them by the fields present.

package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// SenderType identifies who authored a chat message.
type SenderType string

const (
	SenderUser            SenderType = "user"
	SenderCustomerService SenderType = "customer_service"
	SenderSystem          SenderType = "system"
	SenderAdmin           SenderType = "admin"
)

// ChatSession is one user↔agent conversation as reported by the backend.
type ChatSession struct {
	ChatID          string     `json:"chat_id"`
	UserID          string     `json:"user_id"`
	UserDisplayName string     `json:"user_display_name"`
	UserAvatarURL   string     `json:"user_avatar_url"`
	CreatedAt       time.Time  `json:"created_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	IsEnded         bool       `json:"is_ended"`
	UnreadCount     int        `json:"unread_count"`
}

// ChatMessage is one message within a session. ID may be a client-generated
// placeholder until the next authoritative fetch reconciles it.
type ChatMessage struct {
	ID         int64      `json:"id"`
	SenderID   string     `json:"sender_id"`
	ReceiverID string     `json:"receiver_id"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	SenderType SenderType `json:"sender_type,omitempty"`
}

// TimeoutStatus is the backend's view of whether a session has gone silent
// long enough to be eligible for agent-initiated closure.
type TimeoutStatus struct {
	IsEnded              bool     `json:"is_ended"`
	IsTimeout            bool     `json:"is_timeout"`
	TimeoutAvailable     bool     `json:"timeout_available"`
	TimeSinceLastMessage *float64 `json:"time_since_last_message,omitempty"`
}

// OutboundMessage is the frame sent over the push channel when the agent
// sends a chat message.
type OutboundMessage struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	ChatID     string `json:"chat_id"`
}

// UserInfo accompanies user_connected frames.
type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FrameKind classifies an inbound push frame.
type FrameKind int

const (
	KindUnknown FrameKind = iota
	KindHeartbeat
	KindUserConnected
	KindChatMessage
)

// Frame is a decoded inbound push frame. The backend multiplexes several
// shapes over one channel, discriminated by which fields are present.
type Frame struct {
	Type     string    `json:"type,omitempty"`
	UserInfo *UserInfo `json:"user_info,omitempty"`

	// Chat message fields. Legacy frames omit chat_id and are matched by
	// the (from, receiver_id) pair instead.
	ID         int64      `json:"id,omitempty"`
	ChatID     string     `json:"chat_id,omitempty"`
	From       string     `json:"from,omitempty"`
	ReceiverID string     `json:"receiver_id,omitempty"`
	Content    string     `json:"content,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	SenderType SenderType `json:"sender_type,omitempty"`
}

// Decode parses a raw frame from the push channel.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return &f, nil
}

// Kind reports what sort of frame this is.
func (f *Frame) Kind() FrameKind {
	switch {
	case f.Type == "heartbeat":
		return KindHeartbeat
	case f.Type == "user_connected" && f.UserInfo != nil:
		return KindUserConnected
	case f.From != "" && f.ReceiverID != "":
		return KindChatMessage
	default:
		return KindUnknown
	}
}

// MatchesSession reports whether a chat message frame belongs to the
// conversation identified by chatID with participants (userID, agentID).
// Frames carrying a chat_id are matched by key; legacy frames are matched
// by pair equality in either direction.
func (f *Frame) MatchesSession(chatID, userID, agentID string) bool {
	if f.ChatID != "" {
		return f.ChatID == chatID
	}
	if f.From == userID && f.ReceiverID == agentID {
		return true
	}
	if f.From == agentID && f.ReceiverID == userID {
		return true
	}
	return false
}

// Message converts a chat message frame into the ChatMessage record shape.
func (f *Frame) Message() ChatMessage {
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	senderType := f.SenderType
	if senderType == "" {
		senderType = SenderUser
	}
	return ChatMessage{
		ID:         f.ID,
		SenderID:   f.From,
		ReceiverID: f.ReceiverID,
		Content:    f.Content,
		CreatedAt:  created,
		SenderType: senderType,
	}
}
