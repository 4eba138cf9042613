// Package agent – executor.go runs tool call batches with the read/write
// split: reads execute immediately, writes suspend the turn behind a
// pending confirmation that the user resolves with confirm, edit, or reject.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

const (
	// DefaultToolTimeout is the maximum time a single tool execution can take.
	DefaultToolTimeout = 30 * time.Second

	// DefaultConfirmationTTL is the soft expiry of a pending confirmation.
	DefaultConfirmationTTL = 24 * time.Hour
)

// Resolution actions for a pending confirmation.
const (
	ActionConfirm = "confirm"
	ActionEdit    = "edit"
	ActionReject  = "reject"
)

// ConfirmableExecutor dispatches tool calls with confirmation gating.
type ConfirmableExecutor struct {
	registry *ToolRegistry
	timeout  time.Duration
	ttl      time.Duration
	logger   *slog.Logger
}

// NewConfirmableExecutor creates an executor over the given tool registry.
func NewConfirmableExecutor(registry *ToolRegistry, ttl time.Duration, logger *slog.Logger) *ConfirmableExecutor {
	if ttl <= 0 {
		ttl = DefaultConfirmationTTL
	}
	return &ConfirmableExecutor{
		registry: registry,
		timeout:  DefaultToolTimeout,
		ttl:      ttl,
		logger:   logger.With("component", "executor"),
	}
}

// Run processes one batch of tool calls from the engine. Reads execute
// immediately and their outcomes are appended to state. If the batch
// contains write calls, they are collected into a single pending
// confirmation and NOT executed — the caller must suspend the turn.
// Returns the pending confirmation, or nil when no writes were requested.
func (e *ConfirmableExecutor) Run(ctx context.Context, state *State, domain DomainConfig, calls []llm.ToolCall, session *Session, sink StreamSink) *PendingConfirmation {
	var writes []llm.ToolCall

	for _, call := range calls {
		if domain.IsWriteTool(call.Function.Name) {
			writes = append(writes, call)
			continue
		}

		outcome := e.executeOne(ctx, call, session)
		e.appendOutcome(state, call, outcome, false)
		sink.ToolResult(call, outcome)
	}

	if len(writes) == 0 {
		return nil
	}

	pending := e.NewPendingConfirmation(domain.Name, writes)
	e.logger.Info("write batch pending confirmation",
		"confirmation_id", pending.ID,
		"tools", len(writes),
		"expires_at", pending.ExpiresAt.Format(time.RFC3339),
	)
	return pending
}

// Resolve applies a confirmation decision to the pending batch on state and
// clears it. The batch resolves atomically: every call is executed (confirm,
// edit) or every call gets a synthesized rejection outcome (reject). A
// per-call execution error becomes a failure outcome and never aborts the
// remaining calls.
//
// For ActionEdit, editedArgs maps tool call ID to argument overrides that
// are merged over the original arguments (override wins).
func (e *ConfirmableExecutor) Resolve(ctx context.Context, state *State, action string, editedArgs map[string]map[string]any, session *Session, sink StreamSink) error {
	pending := state.Pending
	if pending == nil {
		return fmt.Errorf("no pending confirmation on thread %s", state.ThreadID)
	}

	switch action {
	case ActionConfirm, ActionEdit:
		for _, call := range pending.Calls {
			execCall := call
			if action == ActionEdit {
				if override, ok := editedArgs[call.ID]; ok && len(override) > 0 {
					merged, err := mergeArgs(call, override)
					if err != nil {
						outcome := &ToolOutcome{Success: false, Error: fmt.Sprintf("argumentos editados inválidos: %v", err)}
						e.appendOutcome(state, call, outcome, true)
						sink.ToolResult(call, outcome)
						continue
					}
					execCall = merged
				}
			}

			outcome := e.executeOne(ctx, execCall, session)
			e.appendOutcome(state, execCall, outcome, true)
			sink.ToolResult(execCall, outcome)
		}

	case ActionReject:
		e.rejectAll(state, pending, CancellationMessage, sink, true)

	default:
		return fmt.Errorf("unknown confirmation action %q", action)
	}

	state.Pending = nil
	e.logger.Info("confirmation resolved",
		"confirmation_id", pending.ID,
		"action", action,
		"tools", len(pending.Calls),
	)
	return nil
}

// RejectSilently synthesizes rejection outcomes for the pending batch
// without emitting any stream events or user-visible text. Used when a new
// message arrives that is unrelated to the pending confirmation, and when a
// confirmation has expired.
func (e *ConfirmableExecutor) RejectSilently(state *State, message string) {
	pending := state.Pending
	if pending == nil {
		return
	}
	if message == "" {
		message = CancellationMessage
	}
	// Write stays false: these calls never executed, so the loop guard has
	// nothing to protect in the turn that follows.
	e.rejectAll(state, pending, message, NopSink{}, false)
	state.Pending = nil

	e.logger.Info("pending confirmation rejected silently",
		"confirmation_id", pending.ID,
		"tools", len(pending.Calls),
	)
}

// ---------- Internal ----------

// executeOne runs a single tool call and folds every failure mode into a
// ToolOutcome.
func (e *ConfirmableExecutor) executeOne(ctx context.Context, call llm.ToolCall, session *Session) *ToolOutcome {
	name := call.Function.Name

	tool, ok := e.registry.Get(name)
	if !ok {
		e.logger.Warn("unknown tool called", "name", name)
		return &ToolOutcome{Success: false, Error: fmt.Sprintf("ferramenta desconhecida: %s", name)}
	}

	args, err := call.Args()
	if err != nil {
		e.logger.Warn("tool argument parse error", "name", name, "error", err)
		return &ToolOutcome{Success: false, Error: fmt.Sprintf("argumentos inválidos: %v", err)}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	outcome, err := tool.Execute(execCtx, args, session)
	duration := time.Since(start)

	if err != nil {
		e.logger.Warn("tool execution failed",
			"name", name,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return &ToolOutcome{Success: false, Error: err.Error()}
	}
	if outcome == nil {
		outcome = &ToolOutcome{Success: true}
	}

	e.logger.Info("tool executed",
		"name", name,
		"success", outcome.Success,
		"duration_ms", duration.Milliseconds(),
	)
	return outcome
}

// appendOutcome records a tool outcome in state, keyed by the tool call ID
// so duplicate appends are no-ops.
func (e *ConfirmableExecutor) appendOutcome(state *State, call llm.ToolCall, outcome *ToolOutcome, write bool) {
	state.Append(StateMessage{
		ID:         call.ID,
		Role:       "tool",
		Name:       call.Function.Name,
		Content:    outcome.Encode(),
		ToolCallID: call.ID,
		Write:      write,
	})
}

// rejectAll appends a synthesized failure outcome for every pending call.
func (e *ConfirmableExecutor) rejectAll(state *State, pending *PendingConfirmation, message string, sink StreamSink, write bool) {
	for _, call := range pending.Calls {
		outcome := &ToolOutcome{Success: false, Message: message}
		e.appendOutcome(state, call, outcome, write)
		sink.ToolResult(call, outcome)
	}
}

// mergeArgs merges edited arguments over a call's original arguments and
// returns a copy of the call with the merged serialization.
func mergeArgs(call llm.ToolCall, override map[string]any) (llm.ToolCall, error) {
	args, err := call.Args()
	if err != nil {
		return call, err
	}
	for k, v := range override {
		args[k] = v
	}

	b, err := json.Marshal(args)
	if err != nil {
		return call, err
	}

	merged := call
	merged.Function.Arguments = string(b)
	return merged, nil
}
