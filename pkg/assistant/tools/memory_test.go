package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
	"github.com/oeduardop1/life-assistant/pkg/assistant/memory"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

// queueEngine replays scripted responses for contradiction checks.
type queueEngine struct {
	responses []string
	calls     int
}

func (q *queueEngine) Complete(_ context.Context, _ []llm.Message, _ []llm.ToolDefinition) (*llm.Response, error) {
	q.calls++
	if len(q.responses) == 0 {
		return &llm.Response{Content: "[]"}, nil
	}
	r := q.responses[0]
	q.responses = q.responses[1:]
	return &llm.Response{Content: r}, nil
}

func newMemoryEnv(t *testing.T, engine *queueEngine) (*memory.Store, *memory.Detector) {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return memory.NewStore(db), memory.NewDetector(engine, testLogger())
}

func TestGenerateTitle(t *testing.T) {
	cases := []struct {
		itemType string
		content  string
		want     string
	}{
		{"fact", "Trabalha como desenvolvedor. Há 3 anos.", "Fato: Trabalha como desenvolvedor"},
		{"preference", "Prefere café sem açúcar", "Preferência: Prefere café sem açúcar"},
		{"person", "Maria é irmã do usuário", "Pessoa: Maria é irmã do usuário"},
	}
	for _, tc := range cases {
		if got := generateTitle(tc.itemType, tc.content); got != tc.want {
			t.Errorf("generateTitle(%q, %q) = %q, want %q", tc.itemType, tc.content, got, tc.want)
		}
	}

	long := generateTitle("fact", strings.Repeat("a", 200))
	if len([]rune(long)) != maxTitleLength {
		t.Errorf("long title length = %d, want %d", len([]rune(long)), maxTitleLength)
	}
	if !strings.HasSuffix(long, "...") {
		t.Errorf("long title not truncated: %q", long)
	}
}

func TestAddKnowledge(t *testing.T) {
	ctx := context.Background()

	t.Run("stores validated item", func(t *testing.T) {
		engine := &queueEngine{}
		memStore, detector := newMemoryEnv(t, engine)
		tool := NewAddKnowledgeTool(memStore, detector, testLogger())

		outcome, err := tool.Execute(ctx, map[string]any{
			"content":        "Trabalha como desenvolvedor",
			"knowledge_type": "fact",
			"area":           "professional",
		}, testSession())
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !outcome.Success {
			t.Fatalf("outcome = %+v", outcome)
		}
		if outcome.Message != "Conhecimento adicionado: Fato: Trabalha como desenvolvedor" {
			t.Errorf("message = %q", outcome.Message)
		}

		items, err := memStore.ActiveItems(ctx, "u1", "", "", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 {
			t.Fatalf("items = %d", len(items))
		}
		if !items[0].ValidatedByUser || items[0].Source != "conversation" {
			t.Errorf("item = %+v", items[0])
		}
	})

	t.Run("supersedes top contradiction", func(t *testing.T) {
		engine := &queueEngine{}
		memStore, detector := newMemoryEnv(t, engine)
		tool := NewAddKnowledgeTool(memStore, detector, testLogger())

		old := &memory.KnowledgeItem{UserID: "u1", Type: "fact", Area: "professional", Title: "t", Content: "Está desempregado"}
		if err := memStore.InsertItem(ctx, old); err != nil {
			t.Fatal(err)
		}

		engine.responses = []string{
			`[{"item_id": "` + old.ID + `", "is_contradiction": true, "confidence": 0.95, "reason": "mudou de status"}]`,
		}

		outcome, err := tool.Execute(ctx, map[string]any{
			"content":        "Trabalha como desenvolvedor",
			"knowledge_type": "fact",
			"area":           "professional",
		}, testSession())
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !outcome.Success {
			t.Fatalf("outcome = %+v", outcome)
		}

		active, err := memStore.ActiveItems(ctx, "u1", "", "", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(active) != 1 {
			t.Fatalf("active items = %d, want 1 (old superseded, never deleted)", len(active))
		}
		if active[0].Content != "Trabalha como desenvolvedor" {
			t.Errorf("surviving item = %+v", active[0])
		}
	})

	t.Run("maps type aliases", func(t *testing.T) {
		engine := &queueEngine{}
		memStore, detector := newMemoryEnv(t, engine)
		tool := NewAddKnowledgeTool(memStore, detector, testLogger())

		outcome, err := tool.Execute(ctx, map[string]any{
			"content":        "Quer correr uma maratona",
			"knowledge_type": "goal",
		}, testSession())
		if err != nil {
			t.Fatal(err)
		}
		if !outcome.Success {
			t.Fatalf("outcome = %+v", outcome)
		}

		items, _ := memStore.ActiveItems(ctx, "u1", "fact", "", 0)
		if len(items) != 1 {
			t.Errorf("goal alias should store as fact, items = %d", len(items))
		}
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		engine := &queueEngine{}
		memStore, detector := newMemoryEnv(t, engine)
		tool := NewAddKnowledgeTool(memStore, detector, testLogger())

		outcome, err := tool.Execute(ctx, map[string]any{
			"content":        "x",
			"knowledge_type": "banana",
		}, testSession())
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Success {
			t.Error("unknown type should be rejected")
		}
	})
}

func TestAddKnowledgeConfirmationMessage(t *testing.T) {
	tool := NewAddKnowledgeTool(nil, nil, testLogger())
	msg := tool.ConfirmationMessage(map[string]any{"content": "Prefere café sem açúcar"})
	if msg != "Salvar: 'Prefere café sem açúcar'?" {
		t.Errorf("message = %q", msg)
	}
}

func TestAnalyzeContext(t *testing.T) {
	engine := &queueEngine{}
	memStore, _ := newMemoryEnv(t, engine)
	tool := NewAnalyzeContextTool(memStore)
	ctx := context.Background()

	mem, err := memStore.EnsureUserMemory(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	mem.Occupation = "desenvolvedor"
	if err := memStore.SaveUserMemory(ctx, mem); err != nil {
		t.Fatal(err)
	}
	if err := memStore.InsertItem(ctx, &memory.KnowledgeItem{
		UserID: "u1", Type: "preference", Area: "health", Title: "t", Content: "Prefere treinar de manhã",
	}); err != nil {
		t.Fatal(err)
	}

	outcome, err := tool.Execute(ctx, map[string]any{}, testSession())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome = %+v", outcome)
	}

	data := outcome.Data.(map[string]any)
	profile := data["profile"].(map[string]any)
	if profile["occupation"] != "desenvolvedor" {
		t.Errorf("profile = %v", profile)
	}
	knowledge := data["knowledge"].([]map[string]any)
	if len(knowledge) != 1 {
		t.Errorf("knowledge = %d", len(knowledge))
	}
}
