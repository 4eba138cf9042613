// Package agent – events.go defines the ordered per-turn event stream the
// runner emits. Transports (SSE server, CLI chat) implement StreamSink and
// translate the calls into their wire format.
package agent

import (
	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

// StreamSink receives turn progress events in emission order.
// Implementations must tolerate being called after the client went away —
// the runner keeps executing and persisting even when nobody is listening.
type StreamSink interface {
	// Delta delivers one streamed text fragment of the assistant response.
	Delta(content string)

	// ToolCalls announces the batch of tool calls the engine requested.
	ToolCalls(calls []llm.ToolCall)

	// ToolResult delivers the outcome of one executed (or synthesized) call.
	ToolResult(call llm.ToolCall, outcome *ToolOutcome)

	// ConfirmationRequired announces that the turn is suspending on a
	// pending write batch. Always followed by Done with awaiting=true.
	ConfirmationRequired(p *ConfirmationPayload)

	// Done terminates the stream with the final response text.
	Done(content string, awaitingConfirmation bool)

	// Error terminates the stream with a user-presentable error.
	Error(message string)
}

// NopSink discards all events. Used where only the persisted side effects
// matter (silent rejections, background resumes).
type NopSink struct{}

func (NopSink) Delta(string)                             {}
func (NopSink) ToolCalls([]llm.ToolCall)                 {}
func (NopSink) ToolResult(llm.ToolCall, *ToolOutcome)    {}
func (NopSink) ConfirmationRequired(*ConfirmationPayload) {}
func (NopSink) Done(string, bool)                        {}
func (NopSink) Error(string)                             {}
