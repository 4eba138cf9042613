// Package agent – confirmation.go builds the user-facing confirmation
// question (PT-BR) and the confirmation_required payload for a pending
// write batch.
package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

// CancellationMessage is the synthesized outcome message for rejected writes.
const CancellationMessage = "Operação cancelada pelo usuário."

// ExpiredMessage is the synthesized outcome message for expired confirmations.
const ExpiredMessage = "Confirmação expirada."

// ConfirmationTool describes one call of a pending batch in the payload.
type ConfirmationTool struct {
	ToolName   string         `json:"toolName"`
	ToolArgs   map[string]any `json:"toolArgs"`
	ToolCallID string         `json:"toolCallId"`
}

// ConfirmationPayload is the confirmation_required event data. The single
// toolName/toolArgs fields mirror the first call for clients that only
// render one operation; Tools carries the full batch.
type ConfirmationPayload struct {
	ConfirmationID string             `json:"confirmationId"`
	ToolName       string             `json:"toolName"`
	ToolArgs       map[string]any     `json:"toolArgs"`
	ToolNames      []string           `json:"toolNames"`
	Tools          []ConfirmationTool `json:"tools"`
	Message        string             `json:"message"`
	ExpiresAt      time.Time          `json:"expiresAt"`
}

// NewPendingConfirmation builds the pending batch for a set of write calls.
func (e *ConfirmableExecutor) NewPendingConfirmation(domain string, calls []llm.ToolCall) *PendingConfirmation {
	now := time.Now().UTC()
	return &PendingConfirmation{
		ID:        uuid.NewString(),
		Domain:    domain,
		Calls:     calls,
		Message:   e.BatchMessage(calls),
		CreatedAt: now,
		ExpiresAt: now.Add(e.ttl),
	}
}

// BuildConfirmationPayload converts a pending batch into the event payload.
func BuildConfirmationPayload(p *PendingConfirmation) *ConfirmationPayload {
	names := make([]string, 0, len(p.Calls))
	tools := make([]ConfirmationTool, 0, len(p.Calls))
	for _, call := range p.Calls {
		args, _ := call.Args()
		names = append(names, call.Function.Name)
		tools = append(tools, ConfirmationTool{
			ToolName:   call.Function.Name,
			ToolArgs:   args,
			ToolCallID: call.ID,
		})
	}

	payload := &ConfirmationPayload{
		ConfirmationID: p.ID,
		ToolNames:      names,
		Tools:          tools,
		Message:        p.Message,
		ExpiresAt:      p.ExpiresAt,
	}
	if len(tools) > 0 {
		payload.ToolName = tools[0].ToolName
		payload.ToolArgs = tools[0].ToolArgs
	}
	return payload
}

// BatchMessage builds the confirmation question for one or more write calls.
// A single call gets its tool-specific question; a batch gets a count header
// with one bullet per operation.
func (e *ConfirmableExecutor) BatchMessage(calls []llm.ToolCall) string {
	if len(calls) == 1 {
		return e.confirmationMessage(calls[0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Executar %d operações?", len(calls))
	for _, call := range calls {
		b.WriteString("\n• ")
		b.WriteString(e.confirmationMessage(call))
	}
	return b.String()
}

// confirmationMessage asks the tool for its custom question, falling back to
// a generic one.
func (e *ConfirmableExecutor) confirmationMessage(call llm.ToolCall) string {
	name := call.Function.Name
	if tool, ok := e.registry.Get(name); ok {
		if m, ok := tool.(ConfirmationMessenger); ok {
			args, err := call.Args()
			if err == nil {
				if msg := m.ConfirmationMessage(args); msg != "" {
					return msg
				}
			}
		}
	}
	return fmt.Sprintf("Executar %s?", name)
}
