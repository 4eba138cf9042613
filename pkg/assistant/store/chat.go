// Package store – chat.go is the conversation/message repository.
// Messages are append-only; the message id is the idempotency key, so
// re-appending the same message (e.g. after a resumed turn) is a no-op.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

// Conversation is one chat thread.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredMessage is one persisted conversation message.
type StoredMessage struct {
	ID             string
	ConversationID string
	UserID         string
	Role           string
	Content        string
	ToolCalls      []llm.ToolCall
	ToolCallID     string
	CreatedAt      time.Time
}

// ChatStore persists conversations and messages.
type ChatStore struct {
	db *sql.DB
}

// NewChatStore creates a chat repository.
func NewChatStore(db *sql.DB) *ChatStore {
	return &ChatStore{db: db}
}

// EnsureConversation returns the conversation with the given id, creating it
// when absent. The title of a new conversation is derived from the first
// user message.
func (s *ChatStore) EnsureConversation(ctx context.Context, id, userID, firstMessage string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ?`, id)

	var c Conversation
	var createdAt, updatedAt string
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &createdAt, &updatedAt)
	if err == nil {
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		return &c, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	now := time.Now().UTC()
	c = Conversation{
		ID:        id,
		UserID:    userID,
		Title:     DeriveTitle(firstMessage),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Title, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return &c, nil
}

// AppendMessage inserts a message. Duplicate ids are ignored, which makes
// re-appending after a resume safe.
func (s *ChatStore) AppendMessage(ctx context.Context, m *StoredMessage) error {
	toolCalls := "[]"
	if len(m.ToolCalls) > 0 {
		b, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = string(b)
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, conversation_id, user_id, role, content, tool_calls, tool_call_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.UserID, m.Role, m.Content, toolCalls, m.ToolCallID,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), m.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// History returns the messages of a conversation in chronological order.
func (s *ChatStore) History(ctx context.Context, conversationID string, limit int) ([]*StoredMessage, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, role, content, tool_calls, tool_call_id, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at ASC, rowid ASC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// MessagesSince returns all of a user's messages created after the given
// time, across conversations. Used as the consolidation source window.
func (s *ChatStore) MessagesSince(ctx context.Context, userID string, since time.Time) ([]*StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_id, role, content, tool_calls, tool_call_id, created_at
		 FROM messages
		 WHERE user_id = ? AND created_at > ? AND role IN ('user', 'assistant')
		 ORDER BY created_at ASC, rowid ASC`,
		userID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query messages since: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

// DeriveTitle builds a conversation title from the first user message:
// the first sentence, truncated to 60 characters.
func DeriveTitle(message string) string {
	title := strings.TrimSpace(message)
	if title == "" {
		return "Nova conversa"
	}

	for _, sep := range []string{".", "!", "?", "\n"} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}

	runes := []rune(strings.TrimSpace(title))
	if len(runes) > 60 {
		return string(runes[:57]) + "..."
	}
	return string(runes)
}

// ---------- Internal ----------

func collectMessages(rows *sql.Rows) ([]*StoredMessage, error) {
	var msgs []*StoredMessage
	for rows.Next() {
		var m StoredMessage
		var toolCalls, createdAt string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content,
			&toolCalls, &m.ToolCallID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls != "" && toolCalls != "[]" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
