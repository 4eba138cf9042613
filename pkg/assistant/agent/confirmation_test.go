package agent

import (
	"strings"
	"testing"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

func TestBatchMessageSingleCall(t *testing.T) {
	tool := &fakeTool{name: "record_metric", question: "Registrar peso: 80 kg em hoje?"}
	exec, _ := newTestExecutor(t, tool)

	msg := exec.BatchMessage([]llm.ToolCall{
		call("c1", "record_metric", `{"metric_type":"weight","value":80}`),
	})
	if msg != "Registrar peso: 80 kg em hoje?" {
		t.Errorf("message = %q", msg)
	}
}

func TestBatchMessageMultipleCalls(t *testing.T) {
	metric := &fakeTool{name: "record_metric", question: "Registrar peso: 80 kg em hoje?"}
	habit := &fakeTool{name: "record_habit", question: "Marcar hábito 'meditar' como concluído em hoje?"}
	exec, _ := newTestExecutor(t, metric, habit)

	msg := exec.BatchMessage([]llm.ToolCall{
		call("c1", "record_metric", `{}`),
		call("c2", "record_habit", `{}`),
	})

	if !strings.HasPrefix(msg, "Executar 2 operações?") {
		t.Errorf("missing batch header: %q", msg)
	}
	if strings.Count(msg, "\n• ") != 2 {
		t.Errorf("expected 2 bullets: %q", msg)
	}
}

func TestBatchMessageFallback(t *testing.T) {
	exec, _ := newTestExecutor(t)

	msg := exec.BatchMessage([]llm.ToolCall{call("c1", "unknown_tool", `{}`)})
	if msg != "Executar unknown_tool?" {
		t.Errorf("fallback message = %q", msg)
	}
}

func TestBuildConfirmationPayload(t *testing.T) {
	tool := &fakeTool{name: "record_metric", question: "Registrar peso: 80 kg em hoje?"}
	exec, _ := newTestExecutor(t, tool)

	pending := exec.NewPendingConfirmation("tracking", []llm.ToolCall{
		call("c1", "record_metric", `{"value":80}`),
		call("c2", "record_metric", `{"value":500}`),
	})
	payload := BuildConfirmationPayload(pending)

	if payload.ConfirmationID != pending.ID {
		t.Errorf("confirmation id mismatch")
	}
	if payload.ToolName != "record_metric" {
		t.Errorf("compat toolName = %q", payload.ToolName)
	}
	if len(payload.Tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(payload.Tools))
	}
	if payload.Tools[1].ToolCallID != "c2" {
		t.Errorf("second tool call id = %q", payload.Tools[1].ToolCallID)
	}
	if payload.ExpiresAt.IsZero() {
		t.Error("expiresAt not set")
	}
}
