package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTool is a scripted tool for executor tests.
type fakeTool struct {
	name     string
	outcome  *ToolOutcome
	err      error
	executed []map[string]any
	question string
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition(f.name, "test tool", nil)
}

func (f *fakeTool) Execute(_ context.Context, args map[string]any, _ *Session) (*ToolOutcome, error) {
	f.executed = append(f.executed, args)
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &ToolOutcome{Success: true, Message: f.name + " ok"}, nil
}

func (f *fakeTool) ConfirmationMessage(args map[string]any) string {
	return f.question
}

// collectSink records emitted events.
type collectSink struct {
	NopSink
	results       []*ToolOutcome
	confirmations []*ConfirmationPayload
	doneContent   string
	doneAwaiting  bool
	doneCalled    bool
}

func (c *collectSink) ToolResult(_ llm.ToolCall, outcome *ToolOutcome) {
	c.results = append(c.results, outcome)
}

func (c *collectSink) ConfirmationRequired(p *ConfirmationPayload) {
	c.confirmations = append(c.confirmations, p)
}

func (c *collectSink) Done(content string, awaiting bool) {
	c.doneCalled = true
	c.doneContent = content
	c.doneAwaiting = awaiting
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

func trackingDomain() DomainConfig {
	return DomainConfig{
		Name:       "tracking",
		Tools:      []string{"record_metric", "get_history"},
		WriteTools: []string{"record_metric"},
	}
}

func newTestExecutor(t *testing.T, tools ...Tool) (*ConfirmableExecutor, *ToolRegistry) {
	t.Helper()
	reg := NewToolRegistry(testLogger())
	for _, tool := range tools {
		reg.Register(tool)
	}
	return NewConfirmableExecutor(reg, time.Hour, testLogger()), reg
}

func TestRunSplitsReadsFromWrites(t *testing.T) {
	read := &fakeTool{name: "get_history"}
	write := &fakeTool{name: "record_metric"}
	exec, _ := newTestExecutor(t, read, write)

	state := NewState("t1", "u1")
	sink := &collectSink{}
	session := &Session{UserID: "u1"}

	calls := []llm.ToolCall{
		call("c1", "get_history", `{"days": 7}`),
		call("c2", "record_metric", `{"metric_type":"weight","value":80}`),
	}
	pending := exec.Run(context.Background(), state, trackingDomain(), calls, session, sink)

	if len(read.executed) != 1 {
		t.Errorf("read executed %d times, want 1", len(read.executed))
	}
	if len(write.executed) != 0 {
		t.Errorf("write executed %d times before confirmation, want 0", len(write.executed))
	}
	if pending == nil {
		t.Fatal("expected a pending confirmation for the write call")
	}
	if len(pending.Calls) != 1 || pending.Calls[0].ID != "c2" {
		t.Errorf("pending calls = %+v", pending.Calls)
	}
	if len(sink.results) != 1 {
		t.Errorf("stream results = %d, want 1 (read only)", len(sink.results))
	}

	// Read outcome persisted, keyed by call ID.
	found := false
	for _, m := range state.Messages {
		if m.ID == "c1" && m.Role == "tool" {
			found = true
		}
	}
	if !found {
		t.Error("read outcome not appended to state")
	}
}

func TestRunBatchesAllWrites(t *testing.T) {
	w1 := &fakeTool{name: "record_metric"}
	exec, _ := newTestExecutor(t, w1)

	state := NewState("t1", "u1")
	calls := []llm.ToolCall{
		call("c1", "record_metric", `{"metric_type":"weight","value":80}`),
		call("c2", "record_metric", `{"metric_type":"water","value":500}`),
	}
	pending := exec.Run(context.Background(), state, trackingDomain(), calls, &Session{}, &collectSink{})

	if pending == nil || len(pending.Calls) != 2 {
		t.Fatalf("expected one pending confirmation with 2 calls, got %+v", pending)
	}
	if len(w1.executed) != 0 {
		t.Errorf("writes executed before confirmation: %d", len(w1.executed))
	}
}

func TestResolveConfirmExecutesAll(t *testing.T) {
	write := &fakeTool{name: "record_metric"}
	exec, _ := newTestExecutor(t, write)

	state := NewState("t1", "u1")
	state.Pending = exec.NewPendingConfirmation("tracking", []llm.ToolCall{
		call("c1", "record_metric", `{"metric_type":"weight","value":80}`),
		call("c2", "record_metric", `{"metric_type":"water","value":500}`),
	})

	sink := &collectSink{}
	if err := exec.Resolve(context.Background(), state, ActionConfirm, nil, &Session{}, sink); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(write.executed) != 2 {
		t.Errorf("executed = %d, want 2", len(write.executed))
	}
	if state.Pending != nil {
		t.Error("pending not cleared after resolve")
	}
	if len(sink.results) != 2 {
		t.Errorf("stream results = %d, want 2", len(sink.results))
	}
}

func TestResolveEditMergesArgs(t *testing.T) {
	write := &fakeTool{name: "record_metric"}
	exec, _ := newTestExecutor(t, write)

	state := NewState("t1", "u1")
	state.Pending = exec.NewPendingConfirmation("tracking", []llm.ToolCall{
		call("c1", "record_metric", `{"metric_type":"weight","value":80,"unit":"kg"}`),
	})

	edited := map[string]map[string]any{
		"c1": {"value": 82.5},
	}
	if err := exec.Resolve(context.Background(), state, ActionEdit, edited, &Session{}, &collectSink{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(write.executed) != 1 {
		t.Fatalf("executed = %d, want 1", len(write.executed))
	}
	args := write.executed[0]
	if args["value"] != 82.5 {
		t.Errorf("value = %v, want 82.5 (override wins)", args["value"])
	}
	if args["metric_type"] != "weight" || args["unit"] != "kg" {
		t.Errorf("original args lost: %v", args)
	}
}

func TestResolveRejectSynthesizesFailures(t *testing.T) {
	write := &fakeTool{name: "record_metric"}
	exec, _ := newTestExecutor(t, write)

	state := NewState("t1", "u1")
	state.Pending = exec.NewPendingConfirmation("tracking", []llm.ToolCall{
		call("c1", "record_metric", `{"metric_type":"weight","value":80}`),
		call("c2", "record_metric", `{"metric_type":"water","value":500}`),
	})

	sink := &collectSink{}
	if err := exec.Resolve(context.Background(), state, ActionReject, nil, &Session{}, sink); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(write.executed) != 0 {
		t.Errorf("rejected writes were executed: %d", len(write.executed))
	}
	if len(sink.results) != 2 {
		t.Fatalf("results = %d, want 2 synthesized outcomes", len(sink.results))
	}
	for _, o := range sink.results {
		if o.Success {
			t.Error("synthesized outcome should have success=false")
		}
		if o.Message != CancellationMessage {
			t.Errorf("message = %q, want %q", o.Message, CancellationMessage)
		}
	}
}

func TestResolveErrorIsolation(t *testing.T) {
	failing := &fakeTool{name: "record_metric", err: errors.New("disco cheio")}
	exec, _ := newTestExecutor(t, failing)

	state := NewState("t1", "u1")
	state.Pending = exec.NewPendingConfirmation("tracking", []llm.ToolCall{
		call("c1", "record_metric", `{"metric_type":"weight","value":80}`),
		call("c2", "record_metric", `{"metric_type":"water","value":500}`),
	})

	sink := &collectSink{}
	if err := exec.Resolve(context.Background(), state, ActionConfirm, nil, &Session{}, sink); err != nil {
		t.Fatalf("Resolve should not abort on tool errors: %v", err)
	}

	if len(failing.executed) != 2 {
		t.Errorf("executed = %d, want 2 (one failure must not stop the batch)", len(failing.executed))
	}
	for _, o := range sink.results {
		if o.Success || o.Error == "" {
			t.Errorf("expected failure outcome, got %+v", o)
		}
	}
}

func TestRejectSilentlyEmitsNothing(t *testing.T) {
	write := &fakeTool{name: "record_metric"}
	exec, _ := newTestExecutor(t, write)

	state := NewState("t1", "u1")
	state.Pending = exec.NewPendingConfirmation("tracking", []llm.ToolCall{
		call("c1", "record_metric", `{"metric_type":"weight","value":80}`),
	})

	exec.RejectSilently(state, CancellationMessage)

	if state.Pending != nil {
		t.Error("pending not cleared")
	}
	if len(write.executed) != 0 {
		t.Error("silent rejection executed the tool")
	}

	outcome := DecodeOutcome(state.Messages[len(state.Messages)-1].Content)
	if outcome.Success || outcome.Message != CancellationMessage {
		t.Errorf("synthesized outcome = %+v", outcome)
	}

	// The dropped batch never executed, so it must not arm the loop guard.
	if got := state.TrailingWriteOutcomes(); len(got) != 0 {
		t.Errorf("silently rejected batch armed the loop guard: %d outcomes", len(got))
	}
}

func TestExecuteOneUnknownTool(t *testing.T) {
	exec, _ := newTestExecutor(t)

	state := NewState("t1", "u1")
	domain := DomainConfig{Name: "tracking", Tools: []string{"missing"}}
	sink := &collectSink{}
	exec.Run(context.Background(), state, domain, []llm.ToolCall{call("c1", "missing", `{}`)}, &Session{}, sink)

	if len(sink.results) != 1 {
		t.Fatalf("results = %d, want 1", len(sink.results))
	}
	if sink.results[0].Success {
		t.Error("unknown tool should produce a failure outcome")
	}
	if sink.results[0].Error != fmt.Sprintf("ferramenta desconhecida: %s", "missing") {
		t.Errorf("error = %q", sink.results[0].Error)
	}
}
