// ABOUTME: Tests for HTML transcript rendering
// ABOUTME: Covers markdown conversion, participant labels and file output

package transcript

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/helpdesk-console/internal/wire"
)

func sampleSession() wire.ChatSession {
	return wire.ChatSession{
		ChatID:          "c1",
		UserID:          "u1",
		UserDisplayName: "Dana",
		CreatedAt:       time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestRender_MarkdownConverted(t *testing.T) {
	messages := []wire.ChatMessage{
		{ID: 1, SenderID: "u1", Content: "my order is **missing**", CreatedAt: time.Now(), SenderType: wire.SenderUser},
		{ID: 2, SenderID: "agent-1", Content: "looking into it", CreatedAt: time.Now(), SenderType: wire.SenderCustomerService},
	}

	html, err := Render(sampleSession(), messages)
	require.NoError(t, err)

	out := string(html)
	assert.Contains(t, out, "<strong>missing</strong>")
	assert.Contains(t, out, "Conversation with Dana")
	assert.Contains(t, out, "Support")
	assert.Contains(t, out, "c1")
}

func TestRender_FallsBackToUserID(t *testing.T) {
	session := sampleSession()
	session.UserDisplayName = ""

	html, err := Render(session, nil)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Conversation with u1")
}

func TestRender_EndedSessionShowsEndTime(t *testing.T) {
	session := sampleSession()
	endedAt := time.Date(2026, 4, 1, 10, 30, 0, 0, time.UTC)
	session.EndedAt = &endedAt
	session.IsEnded = true

	html, err := Render(session, nil)
	require.NoError(t, err)
	assert.Contains(t, string(html), "ended")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.html")
	messages := []wire.ChatMessage{
		{ID: 1, SenderID: "u1", Content: "hello", CreatedAt: time.Now(), SenderType: wire.SenderUser},
	}

	require.NoError(t, WriteFile(path, sampleSession(), messages))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
