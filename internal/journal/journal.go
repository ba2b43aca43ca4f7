// ABOUTME: Local SQLite cache of sessions and message snapshots using modernc.org/sqlite
// ABOUTME: Seeds the console before the first poll and feeds transcript export

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/helpdesk-console/internal/wire"
)

// Journal is a client-side cache only: the backend owns real persistence.
// Snapshots are replaced wholesale, mirroring the registry's and stream's
// reconciliation semantics.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the journal database at the given path.
// Parent directories are created if needed.
func Open(path string) (*Journal, error) {
	logger := slog.Default().With("component", "journal")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// WAL keeps reads cheap while snapshot writes land
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		chat_id           TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		user_display_name TEXT NOT NULL DEFAULT '',
		user_avatar_url   TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL,
		ended_at          TEXT,
		is_ended          INTEGER NOT NULL DEFAULT 0,
		unread_count      INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		chat_id     TEXT NOT NULL,
		id          INTEGER NOT NULL,
		sender_id   TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		sender_type TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveSessions replaces the cached session list wholesale.
func (j *Journal) SaveSessions(ctx context.Context, sessions []wire.ChatSession) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sessions (chat_id, user_id, user_display_name, user_avatar_url, created_at, ended_at, is_ended, unread_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range sessions {
		var endedAt any
		if s.EndedAt != nil {
			endedAt = s.EndedAt.Format(time.RFC3339Nano)
		}
		_, err := stmt.ExecContext(ctx,
			s.ChatID, s.UserID, s.UserDisplayName, s.UserAvatarURL,
			s.CreatedAt.Format(time.RFC3339Nano), endedAt, boolToInt(s.IsEnded), s.UnreadCount)
		if err != nil {
			return fmt.Errorf("inserting session %s: %w", s.ChatID, err)
		}
	}

	return tx.Commit()
}

// LoadSessions returns the cached session list, newest first.
func (j *Journal) LoadSessions(ctx context.Context) ([]wire.ChatSession, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT chat_id, user_id, user_display_name, user_avatar_url, created_at, ended_at, is_ended, unread_count
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []wire.ChatSession
	for rows.Next() {
		var s wire.ChatSession
		var createdAt string
		var endedAt sql.NullString
		var isEnded int
		if err := rows.Scan(&s.ChatID, &s.UserID, &s.UserDisplayName, &s.UserAvatarURL,
			&createdAt, &endedAt, &isEnded, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if endedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err == nil {
				s.EndedAt = &t
			}
		}
		s.IsEnded = isEnded != 0
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveMessages replaces the cached log for one session wholesale.
func (j *Journal) SaveMessages(ctx context.Context, chatID string, messages []wire.ChatMessage) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("clearing messages: %w", err)
	}

	// No uniqueness on (chat_id, id): saves replace the session's rows
	// wholesale, and legacy messages all carry id 0.
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (chat_id, id, sender_id, receiver_id, content, created_at, sender_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range messages {
		_, err := stmt.ExecContext(ctx,
			chatID, m.ID, m.SenderID, m.ReceiverID, m.Content,
			m.CreatedAt.Format(time.RFC3339Nano), string(m.SenderType))
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// LoadMessages returns the cached log for a session in stored order.
func (j *Journal) LoadMessages(ctx context.Context, chatID string) ([]wire.ChatMessage, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, created_at, sender_type
		FROM messages WHERE chat_id = ? ORDER BY rowid`, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []wire.ChatMessage
	for rows.Next() {
		var m wire.ChatMessage
		var createdAt, senderType string
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &createdAt, &senderType); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		m.SenderType = wire.SenderType(senderType)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
