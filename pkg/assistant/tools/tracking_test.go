package tools

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTrackingStore(t *testing.T) *store.TrackingStore {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewTrackingStore(db)
}

func testSession() *agent.Session {
	return &agent.Session{UserID: "u1", Timezone: "America/Sao_Paulo"}
}

func TestRecordMetricExecute(t *testing.T) {
	tracking := testTrackingStore(t)
	tool := NewRecordMetricTool(tracking, testLogger())
	ctx := context.Background()

	t.Run("records with defaults", func(t *testing.T) {
		outcome, err := tool.Execute(ctx, map[string]any{
			"metric_type": "weight",
			"value":       80.5,
			"date":        "2026-08-30",
		}, testSession())
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !outcome.Success {
			t.Fatalf("outcome = %+v", outcome)
		}
		if outcome.Message != "Registrado: peso = 80.5 kg em 2026-08-30" {
			t.Errorf("message = %q", outcome.Message)
		}

		entries, err := tracking.ListRecent(ctx, "u1", "weight", 7)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Fatalf("entries = %d", len(entries))
		}
		e := entries[0]
		if e.Unit != "kg" || e.Area != "health" || e.SubArea != "physical" {
			t.Errorf("entry = %+v", e)
		}
	})

	t.Run("rejects invalid type", func(t *testing.T) {
		outcome, err := tool.Execute(ctx, map[string]any{"metric_type": "steps", "value": 100.0}, testSession())
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if outcome.Success || !strings.Contains(outcome.Error, "Tipo inválido") {
			t.Errorf("outcome = %+v", outcome)
		}
	})

	t.Run("rejects out-of-range value", func(t *testing.T) {
		for _, tc := range []struct {
			metric string
			value  float64
		}{
			{"weight", 600},
			{"sleep", 25},
			{"mood", 11},
			{"mood", 0},
		} {
			outcome, err := tool.Execute(ctx, map[string]any{"metric_type": tc.metric, "value": tc.value}, testSession())
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if outcome.Success {
				t.Errorf("%s=%v should be rejected", tc.metric, tc.value)
			}
		}
	})

	t.Run("rejects missing value", func(t *testing.T) {
		outcome, err := tool.Execute(ctx, map[string]any{"metric_type": "weight"}, testSession())
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if outcome.Success {
			t.Error("missing value should be rejected")
		}
	})
}

func TestRecordMetricConfirmationMessage(t *testing.T) {
	tool := NewRecordMetricTool(nil, testLogger())

	msg := tool.ConfirmationMessage(map[string]any{
		"metric_type": "water",
		"value":       500.0,
		"date":        "2026-08-31",
	})
	if msg != "Registrar água: 500 ml em 2026-08-31?" {
		t.Errorf("message = %q", msg)
	}

	// Sem data: "hoje".
	msg = tool.ConfirmationMessage(map[string]any{"metric_type": "weight", "value": 80.0})
	if msg != "Registrar peso: 80 kg em hoje?" {
		t.Errorf("message = %q", msg)
	}
}

func TestRecordHabit(t *testing.T) {
	tracking := testTrackingStore(t)
	tool := NewRecordHabitTool(tracking, testLogger())
	ctx := context.Background()

	outcome, err := tool.Execute(ctx, map[string]any{"name": "meditar", "date": "2026-08-31"}, testSession())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Success || outcome.Message != "Hábito 'meditar' concluído em 2026-08-31" {
		t.Errorf("outcome = %+v", outcome)
	}

	if msg := tool.ConfirmationMessage(map[string]any{"name": "meditar"}); msg != "Marcar hábito 'meditar' como concluído em hoje?" {
		t.Errorf("confirmation = %q", msg)
	}

	outcome, err = tool.Execute(ctx, map[string]any{"name": "  "}, testSession())
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Success {
		t.Error("empty habit name should be rejected")
	}
}

func TestGetHistory(t *testing.T) {
	tracking := testTrackingStore(t)
	ctx := context.Background()

	today := time.Now().UTC().Format("2006-01-02")
	for _, e := range []*store.TrackingEntry{
		{UserID: "u1", Type: "weight", Area: "health", Value: 80, Unit: "kg", EntryDate: today},
		{UserID: "u1", Type: "water", Area: "health", Value: 500, Unit: "ml", EntryDate: today},
	} {
		if err := tracking.Insert(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tool := NewGetHistoryTool(tracking)
	outcome, err := tool.Execute(ctx, map[string]any{"metric_type": "weight"}, testSession())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Success {
		t.Fatalf("outcome = %+v", outcome)
	}
	data := outcome.Data.(map[string]any)
	entries := data["entries"].([]map[string]any)
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1 (filtered by type)", len(entries))
	}
}

func TestResolveDate(t *testing.T) {
	if got := resolveDate(map[string]any{"date": "2026-01-15"}, "America/Sao_Paulo"); got != "2026-01-15" {
		t.Errorf("explicit date = %q", got)
	}

	// Malformed dates fall back to today.
	got := resolveDate(map[string]any{"date": "ontem"}, "America/Sao_Paulo")
	if _, err := time.Parse("2006-01-02", got); err != nil {
		t.Errorf("fallback date %q not in YYYY-MM-DD", got)
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		80:    "80",
		80.5:  "80.5",
		80.25: "80.25",
		0.1:   "0.1",
	}
	for in, want := range cases {
		if got := formatNumber(in); got != want {
			t.Errorf("formatNumber(%v) = %q, want %q", in, got, want)
		}
	}
}
