// ABOUTME: Tests for the backend REST client against an httptest server
// ABOUTME: Covers paths, auth headers, response decoding and error extraction

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/helpdesk-console/internal/wire"
)

func TestListSessions(t *testing.T) {
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/sessions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]wire.ChatSession{
			{ChatID: "c1", UserID: "u1", CreatedAt: created, UnreadCount: 2},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "tok", nil)
	sessions, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "c1", sessions[0].ChatID)
	assert.Equal(t, 2, sessions[0].UnreadCount)
}

func TestListMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/c1/messages", r.URL.Path)
		json.NewEncoder(w).Encode([]wire.ChatMessage{
			{ID: 1, SenderID: "u1", Content: "hi"},
			{ID: 2, SenderID: "agent-1", Content: "hello"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "tok", nil)
	messages, err := client.ListMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(1), messages[0].ID)
}

func TestMarkRead(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New(srv.URL, "tok", nil)
	require.NoError(t, client.MarkRead(context.Background(), "c1"))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/sessions/c1/read", gotPath)
}

func TestTimeoutStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/sessions/c1/timeout", r.URL.Path)
		json.NewEncoder(w).Encode(wire.TimeoutStatus{IsTimeout: true, TimeoutAvailable: true})
	}))
	defer srv.Close()

	client := New(srv.URL, "tok", nil)
	status, err := client.TimeoutStatus(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, status.IsTimeout)
	assert.True(t, status.TimeoutAvailable)
}

func TestTimeoutClose_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "session not timed out"})
	}))
	defer srv.Close()

	client := New(srv.URL, "tok", nil)
	err := client.TimeoutClose(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not timed out")
}

func TestPresenceEndpoints(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, "tok", nil)
	require.NoError(t, client.SetOnline(context.Background()))
	require.NoError(t, client.SetOffline(context.Background()))
	assert.Equal(t, []string{"/api/agent/online", "/api/agent/offline"}, paths)
}

func TestErrorWithoutJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, "tok", nil)
	_, err := client.ListSessions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
