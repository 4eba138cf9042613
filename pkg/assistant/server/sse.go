// Package server – sse.go translates runner events into the SSE wire
// format. Every event is a `data: <json>` line; text deltas carry
// done=false and the terminal event carries done=true.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

// deltaEvent is a streamed text fragment or the terminal event.
type deltaEvent struct {
	Content              string `json:"content"`
	Done                 bool   `json:"done"`
	AwaitingConfirmation bool   `json:"awaitingConfirmation,omitempty"`
	Error                string `json:"error,omitempty"`
}

// typedEvent wraps structured mid-stream events.
type typedEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type toolCallData struct {
	ToolName   string         `json:"toolName"`
	ToolArgs   map[string]any `json:"toolArgs"`
	ToolCallID string         `json:"toolCallId"`
}

type toolCallsData struct {
	ToolCalls []toolCallData `json:"toolCalls"`
}

type toolResultData struct {
	ToolName   string `json:"toolName"`
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
	Success    bool   `json:"success"`
}

// SSESink streams agent events to an HTTP response. Writes after the client
// disconnects are swallowed — the runner keeps going regardless.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSSESink prepares a response for SSE streaming and returns the sink.
// Returns false when the writer cannot flush.
func NewSSESink(w http.ResponseWriter, logger *slog.Logger) (*SSESink, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	return &SSESink{w: w, flusher: flusher, logger: logger}, true
}

func (s *SSESink) Delta(content string) {
	if content == "" {
		return
	}
	s.emit(deltaEvent{Content: content})
}

func (s *SSESink) ToolCalls(calls []llm.ToolCall) {
	data := make([]toolCallData, 0, len(calls))
	for _, call := range calls {
		args, _ := call.Args()
		data = append(data, toolCallData{ToolName: call.Function.Name, ToolArgs: args, ToolCallID: call.ID})
	}
	s.emit(typedEvent{Type: "tool_calls", Data: toolCallsData{ToolCalls: data}})
}

func (s *SSESink) ToolResult(call llm.ToolCall, outcome *agent.ToolOutcome) {
	result := outcome.Message
	if !outcome.Success && outcome.Error != "" {
		result = outcome.Error
	}
	s.emit(typedEvent{Type: "tool_result", Data: toolResultData{
		ToolName:   call.Function.Name,
		ToolCallID: call.ID,
		Result:     result,
		Success:    outcome.Success,
	}})
}

func (s *SSESink) ConfirmationRequired(p *agent.ConfirmationPayload) {
	s.emit(typedEvent{Type: "confirmation_required", Data: p})
}

func (s *SSESink) Done(content string, awaitingConfirmation bool) {
	s.emit(deltaEvent{Content: content, Done: true, AwaitingConfirmation: awaitingConfirmation})
	s.close()
}

func (s *SSESink) Error(message string) {
	s.emit(deltaEvent{Done: true, Error: message})
	s.close()
}

// ---------- Internal ----------

func (s *SSESink) emit(event any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal SSE event", "error", err)
		return
	}
	if _, err := s.w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
		// Client gone. Stop writing, keep the turn running.
		s.closed = true
		return
	}
	s.flusher.Flush()
}

func (s *SSESink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
