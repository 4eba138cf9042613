// Package agent – state.go defines the per-thread conversation state that the
// turn runner mutates and the checkpoint store persists. A suspended turn is
// just a State with a non-nil Pending block; resuming re-hydrates the state
// and picks up where the turn stopped.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

// StateMessage is one message in the thread history.
// For tool outcomes the ID equals the originating tool call ID, so appending
// the same outcome twice (e.g. after a resume) is a no-op.
type StateMessage struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"` // tool name, for role "tool"
	ToolCalls  []llm.ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	Write      bool           `json:"write,omitempty"` // outcome of a write tool
	CreatedAt  time.Time      `json:"createdAt"`
}

// PendingConfirmation is the persisted write batch awaiting user resolution.
type PendingConfirmation struct {
	ID        string         `json:"id"`
	Domain    string         `json:"domain"`
	Calls     []llm.ToolCall `json:"calls"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// Expired reports whether the soft expiry has passed.
func (p *PendingConfirmation) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// State is the full conversation state of one thread.
type State struct {
	ThreadID  string               `json:"threadId"`
	UserID    string               `json:"userId"`
	Domain    string               `json:"domain,omitempty"`
	Messages  []StateMessage       `json:"messages"`
	Pending   *PendingConfirmation `json:"pending,omitempty"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// NewState creates an empty state for a thread.
func NewState(threadID, userID string) *State {
	return &State{ThreadID: threadID, UserID: userID}
}

// Append adds a message unless one with the same ID is already present.
// Returns true when the message was appended.
func (s *State) Append(msg StateMessage) bool {
	for _, m := range s.Messages {
		if m.ID == msg.ID {
			return false
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UTC()
	return true
}

// ChatMessages converts the state history to engine wire messages.
func (s *State) ChatMessages() []llm.Message {
	out := make([]llm.Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		out = append(out, llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

// TrailingWriteOutcomes returns the write-tool outcomes in the block of tool
// messages at the end of the history. This is what the loop guard compares
// new tool calls against. User messages after the block are skipped — a
// confirmation answered in chat puts the user's reply behind the outcomes it
// resolved. Any assistant message ends the block.
func (s *State) TrailingWriteOutcomes() []StateMessage {
	var outcomes []StateMessage
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == "user" {
			continue
		}
		if m.Role != "tool" {
			break
		}
		if m.Write {
			outcomes = append(outcomes, m)
		}
	}
	return outcomes
}

// ---------- Tool outcomes ----------

// ToolOutcome is the uniform result envelope every tool execution produces,
// serialized into the tool message content.
type ToolOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Encode serializes the outcome for a tool message.
func (o *ToolOutcome) Encode() string {
	b, err := json.Marshal(o)
	if err != nil {
		return `{"success":false,"error":"encoding failed"}`
	}
	return string(b)
}

// DecodeOutcome parses a tool message content back into a ToolOutcome.
// Returns a zero outcome when the content is not valid JSON.
func DecodeOutcome(content string) ToolOutcome {
	var o ToolOutcome
	_ = json.Unmarshal([]byte(content), &o)
	return o
}

// ---------- Checkpointing ----------

// CheckpointStore persists conversation state per thread.
// Load returns (nil, nil) when the thread has no checkpoint yet.
type CheckpointStore interface {
	Load(ctx context.Context, threadID string) (*State, error)
	Save(ctx context.Context, state *State) error
}
