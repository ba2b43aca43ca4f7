// ABOUTME: Tests for the local SQLite session and message cache
// ABOUTME: Covers round-trips, wholesale snapshot replacement and ordering

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/helpdesk-console/internal/wire"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "cache", "helpdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestSessions_RoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	endedAt := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	sessions := []wire.ChatSession{
		{
			ChatID: "c1", UserID: "u1", UserDisplayName: "Dana",
			CreatedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), UnreadCount: 3,
		},
		{
			ChatID: "c2", UserID: "u2",
			CreatedAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
			IsEnded:   true, EndedAt: &endedAt,
		},
	}

	require.NoError(t, j.SaveSessions(ctx, sessions))

	loaded, err := j.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// Newest first
	assert.Equal(t, "c2", loaded[0].ChatID)
	assert.True(t, loaded[0].IsEnded)
	require.NotNil(t, loaded[0].EndedAt)
	assert.True(t, loaded[0].EndedAt.Equal(endedAt))

	assert.Equal(t, "Dana", loaded[1].UserDisplayName)
	assert.Equal(t, 3, loaded[1].UnreadCount)
}

func TestSaveSessions_ReplacesWholesale(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.SaveSessions(ctx, []wire.ChatSession{
		{ChatID: "c1", UserID: "u1", CreatedAt: time.Now()},
		{ChatID: "c2", UserID: "u2", CreatedAt: time.Now()},
	}))
	require.NoError(t, j.SaveSessions(ctx, []wire.ChatSession{
		{ChatID: "c3", UserID: "u3", CreatedAt: time.Now()},
	}))

	loaded, err := j.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "c3", loaded[0].ChatID)
}

func TestMessages_RoundTripPreservesOrder(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	messages := []wire.ChatMessage{
		{ID: 2, SenderID: "u1", ReceiverID: "agent-1", Content: "second", CreatedAt: time.Now().UTC(), SenderType: wire.SenderUser},
		{ID: 1, SenderID: "agent-1", ReceiverID: "u1", Content: "first", CreatedAt: time.Now().UTC(), SenderType: wire.SenderCustomerService},
	}
	require.NoError(t, j.SaveMessages(ctx, "c1", messages))

	loaded, err := j.LoadMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// Stored order is preserved as-is, not re-sorted by id
	assert.Equal(t, "second", loaded[0].Content)
	assert.Equal(t, "first", loaded[1].Content)
	assert.Equal(t, wire.SenderCustomerService, loaded[1].SenderType)
}

func TestSaveMessages_IDLessMessagesAllKept(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	messages := []wire.ChatMessage{
		{ID: 0, SenderID: "u1", ReceiverID: "agent-1", Content: "hi back", CreatedAt: time.Now()},
		{ID: 0, SenderID: "u1", ReceiverID: "agent-1", Content: "are you there?", CreatedAt: time.Now()},
	}
	require.NoError(t, j.SaveMessages(ctx, "c1", messages))

	loaded, err := j.LoadMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "are you there?", loaded[1].Content)
}

func TestSaveMessages_ScopedToSession(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.SaveMessages(ctx, "c1", []wire.ChatMessage{{ID: 1, SenderID: "u1", ReceiverID: "a", Content: "one", CreatedAt: time.Now()}}))
	require.NoError(t, j.SaveMessages(ctx, "c2", []wire.ChatMessage{{ID: 1, SenderID: "u2", ReceiverID: "a", Content: "two", CreatedAt: time.Now()}}))

	// Replacing c1 leaves c2 untouched
	require.NoError(t, j.SaveMessages(ctx, "c1", nil))

	c1, err := j.LoadMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, c1)

	c2, err := j.LoadMessages(ctx, "c2")
	require.NoError(t, err)
	require.Len(t, c2, 1)
	assert.Equal(t, "two", c2[0].Content)
}

func TestLoad_EmptyJournal(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	sessions, err := j.LoadSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	messages, err := j.LoadMessages(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, messages)
}
