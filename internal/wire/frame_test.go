// ABOUTME: Tests for push frame decoding and shape-based classification
// ABOUTME: Covers heartbeats, user_connected, chat messages and legacy pair matching

package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Heartbeat(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"heartbeat"}`))
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, frame.Kind())
}

func TestDecode_UserConnected(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"user_connected","user_info":{"id":"u1","name":"Dana"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindUserConnected, frame.Kind())
	require.NotNil(t, frame.UserInfo)
	assert.Equal(t, "u1", frame.UserInfo.ID)
	assert.Equal(t, "Dana", frame.UserInfo.Name)
}

func TestDecode_UserConnectedWithoutInfoIsUnknown(t *testing.T) {
	frame, err := Decode([]byte(`{"type":"user_connected"}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, frame.Kind())
}

func TestDecode_ChatMessage(t *testing.T) {
	raw := `{"id":42,"chat_id":"c1","from":"u1","receiver_id":"agent-1","content":"hello"}`
	frame, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, KindChatMessage, frame.Kind())
	assert.Equal(t, int64(42), frame.ID)
}

func TestDecode_LegacyChatMessageWithoutChatID(t *testing.T) {
	raw := `{"from":"u1","receiver_id":"agent-1","content":"hi"}`
	frame, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, KindChatMessage, frame.Kind())
	assert.Empty(t, frame.ChatID)
}

func TestDecode_EmptyContentIsStillChatMessage(t *testing.T) {
	raw := `{"from":"u1","receiver_id":"agent-1","content":""}`
	frame, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, KindChatMessage, frame.Kind())
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestDecode_EmptyObjectIsUnknown(t *testing.T) {
	frame, err := Decode([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, frame.Kind())
}

func TestMatchesSession_ByChatID(t *testing.T) {
	frame := &Frame{ChatID: "c1", From: "someone", ReceiverID: "else", Content: "x"}

	assert.True(t, frame.MatchesSession("c1", "u1", "agent-1"))
	assert.False(t, frame.MatchesSession("c2", "u1", "agent-1"))
}

func TestMatchesSession_LegacyPair(t *testing.T) {
	inbound := &Frame{From: "u1", ReceiverID: "agent-1", Content: "x"}
	outbound := &Frame{From: "agent-1", ReceiverID: "u1", Content: "x"}
	other := &Frame{From: "u2", ReceiverID: "agent-1", Content: "x"}

	assert.True(t, inbound.MatchesSession("c1", "u1", "agent-1"))
	assert.True(t, outbound.MatchesSession("c1", "u1", "agent-1"))
	assert.False(t, other.MatchesSession("c1", "u1", "agent-1"))
}

func TestMessage_DefaultsApplied(t *testing.T) {
	frame := &Frame{ID: 7, From: "u1", ReceiverID: "agent-1", Content: "hello"}

	msg := frame.Message()
	assert.Equal(t, int64(7), msg.ID)
	assert.Equal(t, "u1", msg.SenderID)
	assert.Equal(t, SenderUser, msg.SenderType)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestMessage_PreservesExplicitFields(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frame := &Frame{
		ID: 7, From: "agent-1", ReceiverID: "u1", Content: "hi",
		CreatedAt: created, SenderType: SenderCustomerService,
	}

	msg := frame.Message()
	assert.Equal(t, created, msg.CreatedAt)
	assert.Equal(t, SenderCustomerService, msg.SenderType)
}
