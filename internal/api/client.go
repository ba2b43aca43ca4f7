// ABOUTME: REST client for the support backend's session and message endpoints
// ABOUTME: All operations are request/response JSON with bearer-token auth

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/helpdesk-console/internal/wire"
)

// Client talks to the support backend's REST endpoints. The backend owns
// persistence and auth; the console only consumes these contracts.
type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client for the given API base URL and access token.
// Pass nil logger for default.
func New(base, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   base,
		token:  token,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger.With("component", "api"),
	}
}

// ListSessions fetches the full session list for the signed-in agent.
func (c *Client) ListSessions(ctx context.Context) ([]wire.ChatSession, error) {
	var sessions []wire.ChatSession
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// ListMessages fetches the ordered message log for a session. The result is
// authoritative: callers replace any locally accumulated state with it.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]wire.ChatMessage, error) {
	var messages []wire.ChatMessage
	path := fmt.Sprintf("/api/sessions/%s/messages", chatID)
	if err := c.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", chatID, err)
	}
	return messages, nil
}

// MarkRead tells the backend the agent has seen all messages in a session.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	path := fmt.Sprintf("/api/sessions/%s/read", chatID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("marking %s read: %w", chatID, err)
	}
	return nil
}

// TimeoutStatus asks whether a session has gone silent long enough to be
// eligible for agent-initiated closure.
func (c *Client) TimeoutStatus(ctx context.Context, chatID string) (*wire.TimeoutStatus, error) {
	var status wire.TimeoutStatus
	path := fmt.Sprintf("/api/sessions/%s/timeout", chatID)
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, fmt.Errorf("fetching timeout status for %s: %w", chatID, err)
	}
	return &status, nil
}

// TimeoutClose force-closes a timed-out session. This is a one-shot action:
// the caller must not retry automatically on failure, since a blind retry
// could race the backend's own timeout detection.
func (c *Client) TimeoutClose(ctx context.Context, chatID string) error {
	path := fmt.Sprintf("/api/sessions/%s/timeout", chatID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("closing %s: %w", chatID, err)
	}
	return nil
}

// SetOnline marks the agent as available for new conversations.
func (c *Client) SetOnline(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/agent/online", nil, nil); err != nil {
		return fmt.Errorf("going online: %w", err)
	}
	return nil
}

// SetOffline marks the agent as unavailable.
func (c *Client) SetOffline(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/agent/offline", nil, nil); err != nil {
		return fmt.Errorf("going offline: %w", err)
	}
	return nil
}

// do executes one request against the backend. A non-2xx response is turned
// into an error carrying the backend's "error" field when present.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// errorFromResponse extracts the backend's error message when the body is
// a JSON object with an "error" field, falling back to the status code.
func (c *Client) errorFromResponse(resp *http.Response) error {
	var errResp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
		if msg, ok := errResp["error"]; ok && msg != "" {
			return fmt.Errorf("%s", msg)
		}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
