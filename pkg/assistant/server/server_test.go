package server

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Requests that fail validation or auth never reach the runner, so a nil
// runner is enough for these tests.
func testServer(token string) *Server {
	return New(nil, nil, Options{ServiceToken: token, MaxInputLength: 50}, testLogger())
}

func post(t *testing.T, router http.Handler, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthzOpen(t *testing.T) {
	router := testServer("secret").Router()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequireToken(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		rec := post(t, testServer("secret").Router(), "/chat/invoke", "", `{}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		rec := post(t, testServer("secret").Router(), "/chat/invoke", "nope", `{}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("unset token disables the API", func(t *testing.T) {
		rec := post(t, testServer("").Router(), "/chat/invoke", "", `{}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestInvokeValidation(t *testing.T) {
	router := testServer("secret").Router()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{`, "JSON inválido"},
		{"missing user", `{"conversationId":"c1","message":"oi"}`, "userId obrigatório"},
		{"missing conversation", `{"userId":"u1","message":"oi"}`, "conversationId obrigatório"},
		{"blank message", `{"userId":"u1","conversationId":"c1","message":"   "}`, "mensagem vazia"},
		{"too long", `{"userId":"u1","conversationId":"c1","message":"` + strings.Repeat("a", 51) + `"}`, "mensagem muito longa"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := post(t, router, "/chat/invoke", "secret", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["error"] != tc.want {
				t.Errorf("error = %q, want %q", body["error"], tc.want)
			}
		})
	}
}

func TestResumeValidation(t *testing.T) {
	router := testServer("secret").Router()

	t.Run("missing thread", func(t *testing.T) {
		rec := post(t, router, "/chat/resume", "secret", `{"action":"confirm"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		rec := post(t, router, "/chat/resume", "secret", `{"threadId":"t1","action":"maybe"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

// ---------- SSE wire format ----------

func sseEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("bad SSE line %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestSSESinkStream(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, ok := NewSSESink(rec, testLogger())
	if !ok {
		t.Fatal("recorder should support flushing")
	}

	sink.Delta("Olá")
	sink.Delta("") // empty deltas are dropped
	sink.ToolCalls([]llm.ToolCall{{
		ID:       "call-1",
		Function: llm.FunctionCall{Name: "record_metric", Arguments: `{"metric_type":"weight","value":80}`},
	}})
	sink.ToolResult(llm.ToolCall{ID: "call-1", Function: llm.FunctionCall{Name: "record_metric"}},
		&agent.ToolOutcome{Success: true, Message: "Registrado"})
	sink.Done("Olá, tudo bem?", true)
	sink.Delta("depois do fim") // ignored after close

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	events := sseEvents(t, rec.Body.String())
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4: %v", len(events), events)
	}

	if events[0]["content"] != "Olá" || events[0]["done"] != false {
		t.Errorf("delta = %v", events[0])
	}

	if events[1]["type"] != "tool_calls" {
		t.Errorf("event = %v", events[1])
	}
	toolCalls := events[1]["data"].(map[string]any)["toolCalls"].([]any)
	if len(toolCalls) != 1 {
		t.Fatalf("toolCalls = %v", toolCalls)
	}
	tc := toolCalls[0].(map[string]any)
	if tc["toolName"] != "record_metric" || tc["toolCallId"] != "call-1" {
		t.Errorf("tool call = %v", tc)
	}
	if args := tc["toolArgs"].(map[string]any); args["metric_type"] != "weight" {
		t.Errorf("toolArgs = %v", args)
	}

	if events[2]["type"] != "tool_result" {
		t.Errorf("event = %v", events[2])
	}
	data := events[2]["data"].(map[string]any)
	if data["toolName"] != "record_metric" || data["toolCallId"] != "call-1" {
		t.Errorf("tool_result data = %v", data)
	}
	if data["result"] != "Registrado" || data["success"] != true {
		t.Errorf("tool_result data = %v", data)
	}

	last := events[3]
	if last["done"] != true || last["awaitingConfirmation"] != true || last["content"] != "Olá, tudo bem?" {
		t.Errorf("terminal = %v", last)
	}
	if _, ok := last["error"]; ok {
		t.Errorf("successful terminal carries error field: %v", last)
	}
}

func TestSSESinkToolResultFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, _ := NewSSESink(rec, testLogger())

	sink.ToolResult(llm.ToolCall{ID: "call-2", Function: llm.FunctionCall{Name: "record_metric"}},
		&agent.ToolOutcome{Success: false, Error: "Tipo inválido: steps"})

	events := sseEvents(t, rec.Body.String())
	data := events[0]["data"].(map[string]any)
	if data["result"] != "Tipo inválido: steps" || data["success"] != false {
		t.Errorf("tool_result data = %v", data)
	}
}

func TestSSESinkError(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, _ := NewSSESink(rec, testLogger())

	sink.Error("Erro ao gerar resposta")

	events := sseEvents(t, rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	terminal := events[0]
	if terminal["done"] != true || terminal["error"] != "Erro ao gerar resposta" {
		t.Errorf("terminal = %v", terminal)
	}
	if terminal["content"] != "" {
		t.Errorf("error terminal content = %v", terminal["content"])
	}
}
