// Package agent – runner.go drives one conversational turn end to end:
// intent triage, domain dispatch with a bounded tool loop, suspension on
// pending write confirmations, and resumption once the user decides.
//
// The turn is a persisted state machine, not a goroutine held open: every
// suspension point saves the checkpoint, and resume re-hydrates the state
// from storage. Stream events are best-effort — outcomes are persisted even
// when the client has disconnected.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

const (
	// maxToolRounds bounds the dispatch loop within one turn.
	maxToolRounds = 8

	// GenericErrorMessage is the localized payload for unexpected failures.
	GenericErrorMessage = "Desculpe, ocorreu um erro. Tente novamente."

	// loopGuardFallback is the substitute response when the engine re-requests
	// a just-executed write tool and produced no usable text.
	loopGuardFallback = "Pronto, registrado!"
)

// Runner orchestrates conversational turns.
type Runner struct {
	engine      llm.StreamEngine
	triage      *Triage
	domains     *DomainRegistry
	tools       *ToolRegistry
	executor    *ConfirmableExecutor
	checkpoints CheckpointStore
	chat        *store.ChatStore // optional; nil skips message persistence
	logger      *slog.Logger

	name     string
	language string
	timezone string
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Name     string
	Language string
	Timezone string
}

// NewRunner wires a turn runner.
func NewRunner(
	engine llm.StreamEngine,
	triage *Triage,
	domains *DomainRegistry,
	tools *ToolRegistry,
	executor *ConfirmableExecutor,
	checkpoints CheckpointStore,
	chat *store.ChatStore,
	opts RunnerOptions,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		engine:      engine,
		triage:      triage,
		domains:     domains,
		tools:       tools,
		executor:    executor,
		checkpoints: checkpoints,
		chat:        chat,
		logger:      logger.With("component", "runner"),
		name:        opts.Name,
		language:    opts.Language,
		timezone:    opts.Timezone,
	}
}

// Invoke runs one turn for a user message on a thread. The thread ID doubles
// as the conversation ID. Events stream to sink; the final state is always
// checkpointed, suspended or not.
func (r *Runner) Invoke(ctx context.Context, userID, threadID, message string, sink StreamSink) error {
	message = strings.TrimSpace(message)
	if message == "" {
		sink.Error("Mensagem vazia.")
		return fmt.Errorf("empty message")
	}

	state, err := r.loadOrCreate(ctx, threadID, userID)
	if err != nil {
		sink.Error(GenericErrorMessage)
		return err
	}

	if r.chat != nil {
		if _, err := r.chat.EnsureConversation(ctx, threadID, userID, message); err != nil {
			r.logger.Warn("failed to ensure conversation", "thread_id", threadID, "error", err)
		}
	}

	session := &Session{UserID: userID, Timezone: r.timezone}

	// A message arriving over a pending confirmation is first read as a
	// possible resolution of that confirmation.
	if state.Pending != nil {
		if state.Pending.Expired(time.Now().UTC()) {
			r.logger.Info("pending confirmation expired", "confirmation_id", state.Pending.ID)
			r.executor.RejectSilently(state, ExpiredMessage)
		} else {
			intent := r.triage.ClassifyConfirmationIntent(ctx, state.Pending.Message, message)
			switch intent {
			case IntentConfirm:
				return r.resolveAndContinue(ctx, state, ActionConfirm, nil, message, session, sink)
			case IntentReject:
				return r.resolveAndContinue(ctx, state, ActionReject, nil, message, session, sink)
			default:
				// Unrelated: drop the pending batch quietly and let the new
				// message proceed as a normal turn.
				r.executor.RejectSilently(state, CancellationMessage)
			}
		}
	}

	userMsg := StateMessage{
		ID:      uuid.NewString(),
		Role:    "user",
		Content: message,
	}
	state.Append(userMsg)
	r.record(ctx, state, userMsg)

	domain := r.domains.Lookup(r.triage.ClassifyDomain(ctx, message))
	state.Domain = domain.Name

	return r.runLoop(ctx, state, domain, session, sink)
}

// Resume resolves the pending confirmation on a thread and continues the
// suspended turn. For ActionEdit, editedArgs maps tool call IDs to argument
// overrides.
func (r *Runner) Resume(ctx context.Context, threadID, action string, editedArgs map[string]map[string]any, sink StreamSink) error {
	state, err := r.checkpoints.Load(ctx, threadID)
	if err != nil {
		sink.Error(GenericErrorMessage)
		return err
	}
	if state == nil || state.Pending == nil {
		sink.Error("Nenhuma confirmação pendente.")
		return fmt.Errorf("no pending confirmation on thread %s", threadID)
	}

	session := &Session{UserID: state.UserID, Timezone: r.timezone}

	if state.Pending.Expired(time.Now().UTC()) {
		r.logger.Info("pending confirmation expired on resume", "confirmation_id", state.Pending.ID)
		r.executor.RejectSilently(state, ExpiredMessage)
		if err := r.save(ctx, state); err != nil {
			sink.Error(GenericErrorMessage)
			return err
		}
		sink.Done(ExpiredMessage, false)
		return nil
	}

	return r.resolveAndContinue(ctx, state, action, editedArgs, "", session, sink)
}

// ---------- Internal ----------

// resolveAndContinue applies a confirmation decision, then hands control
// back to the dispatch loop so the engine can respond to the outcomes.
// A non-empty userReply is the chat message that carried the decision
// ("Sim", "Não, cancela"); it joins the history after the tool outcomes so
// consolidation sees the turn. Resolutions via the resume endpoint have no
// reply text.
func (r *Runner) resolveAndContinue(ctx context.Context, state *State, action string, editedArgs map[string]map[string]any, userReply string, session *Session, sink StreamSink) error {
	if err := r.executor.Resolve(ctx, state, action, editedArgs, session, sink); err != nil {
		sink.Error(GenericErrorMessage)
		return err
	}
	r.recordOutcomes(ctx, state)

	if userReply != "" {
		replyMsg := StateMessage{
			ID:      uuid.NewString(),
			Role:    "user",
			Content: userReply,
		}
		state.Append(replyMsg)
		r.record(ctx, state, replyMsg)
	}

	if err := r.save(ctx, state); err != nil {
		sink.Error(GenericErrorMessage)
		return err
	}

	domain := r.domains.Lookup(state.Domain)
	return r.runLoop(ctx, state, domain, session, sink)
}

// runLoop is the bounded dispatch loop: call the engine with the domain's
// tools, execute tool batches, and stop on a plain text response, a
// suspension, or the round limit.
func (r *Runner) runLoop(ctx context.Context, state *State, domain DomainConfig, session *Session, sink StreamSink) error {
	systemPrompt := BuildSystemPrompt(r.name, r.language, domain, time.Now())
	toolDefs := r.tools.Definitions(domain.Tools)

	for round := 0; round < maxToolRounds; round++ {
		messages := make([]llm.Message, 0, len(state.Messages)+1)
		messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
		messages = append(messages, state.ChatMessages()...)

		resp, err := r.engine.CompleteStream(ctx, messages, toolDefs, sink.Delta)
		if err != nil {
			r.logger.Error("engine call failed", "thread_id", state.ThreadID, "error", err)
			r.saveBestEffort(ctx, state)
			sink.Error(GenericErrorMessage)
			return err
		}

		// No tool calls: the turn ends with the engine's text.
		if len(resp.ToolCalls) == 0 {
			return r.finish(ctx, state, resp.Content, sink)
		}

		// Loop guard: a request for a write tool that just produced an
		// outcome is discarded and replaced with a text response.
		if guarded, prevMsg := r.guardLoop(state, resp.ToolCalls); guarded {
			text := resp.Content
			if text == "" {
				text = prevMsg
			}
			if text == "" {
				text = loopGuardFallback
			}
			r.logger.Warn("loop guard triggered", "thread_id", state.ThreadID, "round", round)
			return r.finish(ctx, state, text, sink)
		}

		assistantMsg := StateMessage{
			ID:        uuid.NewString(),
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		state.Append(assistantMsg)
		r.record(ctx, state, assistantMsg)
		sink.ToolCalls(resp.ToolCalls)

		pending := r.executor.Run(ctx, state, domain, resp.ToolCalls, session, sink)
		r.recordOutcomes(ctx, state)

		if pending != nil {
			state.Pending = pending
			if err := r.save(ctx, state); err != nil {
				sink.Error(GenericErrorMessage)
				return err
			}
			sink.ConfirmationRequired(BuildConfirmationPayload(pending))
			sink.Done(resp.Content, true)
			return nil
		}

		if err := r.save(ctx, state); err != nil {
			sink.Error(GenericErrorMessage)
			return err
		}
	}

	// Round limit reached — close the turn instead of looping forever.
	r.logger.Warn("tool round limit reached", "thread_id", state.ThreadID)
	return r.finish(ctx, state, GenericErrorMessage, sink)
}

// finish appends the final assistant text, checkpoints, and closes the stream.
func (r *Runner) finish(ctx context.Context, state *State, content string, sink StreamSink) error {
	if content != "" {
		msg := StateMessage{
			ID:      uuid.NewString(),
			Role:    "assistant",
			Content: content,
		}
		state.Append(msg)
		r.record(ctx, state, msg)
	}
	if err := r.save(ctx, state); err != nil {
		sink.Error(GenericErrorMessage)
		return err
	}
	sink.Done(content, false)
	return nil
}

// guardLoop checks whether any requested call repeats a write tool that
// produced an outcome in the immediately preceding tool block. Returns the
// prior outcome's message for use as substitute text.
func (r *Runner) guardLoop(state *State, calls []llm.ToolCall) (bool, string) {
	outcomes := state.TrailingWriteOutcomes()
	if len(outcomes) == 0 {
		return false, ""
	}

	names := make(map[string]string, len(outcomes)) // tool name -> outcome message
	for _, o := range outcomes {
		names[o.Name] = DecodeOutcome(o.Content).Message
	}

	for _, call := range calls {
		if msg, ok := names[call.Function.Name]; ok {
			return true, msg
		}
	}
	return false, ""
}

func (r *Runner) loadOrCreate(ctx context.Context, threadID, userID string) (*State, error) {
	state, err := r.checkpoints.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if state == nil {
		state = NewState(threadID, userID)
	}
	return state, nil
}

func (r *Runner) save(ctx context.Context, state *State) error {
	if err := r.checkpoints.Save(ctx, state); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

func (r *Runner) saveBestEffort(ctx context.Context, state *State) {
	if err := r.checkpoints.Save(ctx, state); err != nil {
		r.logger.Error("checkpoint save failed", "thread_id", state.ThreadID, "error", err)
	}
}

// record persists one state message to the chat store (best effort).
func (r *Runner) record(ctx context.Context, state *State, msg StateMessage) {
	if r.chat == nil {
		return
	}
	err := r.chat.AppendMessage(ctx, &store.StoredMessage{
		ID:             msg.ID,
		ConversationID: state.ThreadID,
		UserID:         state.UserID,
		Role:           msg.Role,
		Content:        msg.Content,
		ToolCalls:      msg.ToolCalls,
		ToolCallID:     msg.ToolCallID,
	})
	if err != nil {
		r.logger.Warn("failed to persist message", "thread_id", state.ThreadID, "error", err)
	}
}

// recordOutcomes persists any tool messages not yet written to the chat
// store. Duplicate message IDs are ignored by the store, so replaying the
// whole trailing block is safe.
func (r *Runner) recordOutcomes(ctx context.Context, state *State) {
	if r.chat == nil {
		return
	}
	for i := len(state.Messages) - 1; i >= 0; i-- {
		m := state.Messages[i]
		if m.Role != "tool" {
			break
		}
		r.record(ctx, state, m)
	}
}
