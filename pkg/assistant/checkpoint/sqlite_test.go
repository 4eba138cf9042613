package checkpoint

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLoadAbsentThread(t *testing.T) {
	s := newTestStore(t)

	state, err := s.Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state != nil {
		t.Errorf("expected nil state for absent thread, got %+v", state)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := agent.NewState("t1", "u1")
	state.Domain = "tracking"
	state.Append(agent.StateMessage{ID: "m1", Role: "user", Content: "registra 80kg"})
	state.Append(agent.StateMessage{
		ID:        "m2",
		Role:      "assistant",
		ToolCalls: []llm.ToolCall{{ID: "c1", Type: "function", Function: llm.FunctionCall{Name: "record_metric", Arguments: `{"value":80}`}}},
	})
	state.Pending = &agent.PendingConfirmation{
		ID:        "conf-1",
		Domain:    "tracking",
		Message:   "Registrar peso: 80 kg em hoje?",
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour),
	}

	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected state")
	}
	if loaded.Domain != "tracking" || loaded.UserID != "u1" {
		t.Errorf("state fields lost: %+v", loaded)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(loaded.Messages))
	}
	if loaded.Messages[1].ToolCalls[0].Function.Name != "record_metric" {
		t.Error("tool calls not round-tripped")
	}
	if loaded.Pending == nil || loaded.Pending.ID != "conf-1" {
		t.Errorf("pending lost: %+v", loaded.Pending)
	}
}

func TestSaveUpsertsAndTracksPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := agent.NewState("t1", "u1")
	state.Pending = &agent.PendingConfirmation{ID: "conf-1"}
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	pending, err := s.PendingThreads(ctx)
	if err != nil {
		t.Fatalf("PendingThreads: %v", err)
	}
	if len(pending) != 1 || pending[0] != "t1" {
		t.Errorf("pending threads = %v", pending)
	}

	// Resolving clears the flag on the next save.
	state.Pending = nil
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save 2: %v", err)
	}
	pending, err = s.PendingThreads(ctx)
	if err != nil {
		t.Fatalf("PendingThreads 2: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending threads after resolve = %v", pending)
	}
}
