package tools

import (
	"context"
	"testing"

	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

func testFinanceStore(t *testing.T) *store.FinanceStore {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.NewFinanceStore(db)
}

func TestCreateExpense(t *testing.T) {
	finance := testFinanceStore(t)
	tool := NewCreateExpenseTool(finance, testLogger())
	ctx := context.Background()

	t.Run("records expense", func(t *testing.T) {
		outcome, err := tool.Execute(ctx, map[string]any{
			"amount":      50.0,
			"category":    "food",
			"description": "mercado",
			"date":        "2026-08-31",
		}, testSession())
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !outcome.Success || outcome.Message != "Gasto de R$50 registrado em food" {
			t.Errorf("outcome = %+v", outcome)
		}

		expenses, err := finance.ListExpenses(ctx, "u1", "2026-08")
		if err != nil {
			t.Fatal(err)
		}
		if len(expenses) != 1 || expenses[0].Description != "mercado" {
			t.Errorf("expenses = %+v", expenses)
		}
	})

	t.Run("defaults category to other", func(t *testing.T) {
		outcome, err := tool.Execute(ctx, map[string]any{"amount": 12.5, "date": "2026-08-31"}, testSession())
		if err != nil {
			t.Fatal(err)
		}
		if !outcome.Success || outcome.Message != "Gasto de R$12.5 registrado em other" {
			t.Errorf("outcome = %+v", outcome)
		}
	})

	t.Run("rejects missing amount", func(t *testing.T) {
		outcome, err := tool.Execute(ctx, map[string]any{"category": "food"}, testSession())
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Success {
			t.Error("missing amount should be rejected")
		}
	})

	t.Run("confirmation message", func(t *testing.T) {
		msg := tool.ConfirmationMessage(map[string]any{"amount": 50.0, "category": "food"})
		if msg != "Registrar gasto de R$50 em food?" {
			t.Errorf("message = %q", msg)
		}
		msg = tool.ConfirmationMessage(map[string]any{"amount": 50.0})
		if msg != "Registrar gasto de R$50 em other?" {
			t.Errorf("message = %q", msg)
		}
	})
}

func TestMarkBillPaid(t *testing.T) {
	finance := testFinanceStore(t)
	tool := NewMarkBillPaidTool(finance, testLogger())
	ctx := context.Background()

	if err := finance.InsertBill(ctx, &store.Bill{UserID: "u1", Name: "Internet Fibra", Amount: 120, DueDay: 10}); err != nil {
		t.Fatal(err)
	}

	t.Run("matches by partial name", func(t *testing.T) {
		outcome, err := tool.Execute(ctx, map[string]any{"name": "internet", "date": "2026-08-31"}, testSession())
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !outcome.Success || outcome.Message != "Conta 'Internet Fibra' marcada como paga em 2026-08-31" {
			t.Errorf("outcome = %+v", outcome)
		}

		bills, err := finance.ListBills(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if !bills[0].Paid || bills[0].PaidAt.IsZero() {
			t.Errorf("bill = %+v", bills[0])
		}
	})

	t.Run("unknown bill", func(t *testing.T) {
		outcome, err := tool.Execute(ctx, map[string]any{"name": "aluguel"}, testSession())
		if err != nil {
			t.Fatal(err)
		}
		if outcome.Success || outcome.Error != "Conta não encontrada: aluguel" {
			t.Errorf("outcome = %+v", outcome)
		}
	})

	t.Run("confirmation message", func(t *testing.T) {
		msg := tool.ConfirmationMessage(map[string]any{"name": "internet"})
		if msg != "Marcar conta 'internet' como paga em hoje?" {
			t.Errorf("message = %q", msg)
		}
	})
}

func TestGetBills(t *testing.T) {
	finance := testFinanceStore(t)
	tool := NewGetBillsTool(finance)
	ctx := context.Background()

	for _, b := range []*store.Bill{
		{UserID: "u1", Name: "Luz", Amount: 200, DueDay: 5},
		{UserID: "u1", Name: "Aluguel", Amount: 1500, DueDay: 1},
	} {
		if err := finance.InsertBill(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	outcome, err := tool.Execute(ctx, map[string]any{}, testSession())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Success || outcome.Message != "2 contas, 2 pendentes" {
		t.Errorf("outcome = %+v", outcome)
	}

	bills := outcome.Data.(map[string]any)["bills"].([]map[string]any)
	if len(bills) != 2 {
		t.Fatalf("bills = %d", len(bills))
	}
	// Contas não pagas vêm com paidAt vazio, não com data zero.
	if bills[0]["paidAt"] != "" {
		t.Errorf("paidAt = %v", bills[0]["paidAt"])
	}
}

func TestGetFinanceSummary(t *testing.T) {
	finance := testFinanceStore(t)
	tool := NewGetFinanceSummaryTool(finance)
	ctx := context.Background()

	for _, e := range []*store.Expense{
		{UserID: "u1", Amount: 50, Category: "food", EntryDate: "2026-08-10"},
		{UserID: "u1", Amount: 270, Category: "transport", EntryDate: "2026-08-15"},
		{UserID: "u1", Amount: 99, Category: "food", EntryDate: "2026-07-01"},
	} {
		if err := finance.InsertExpense(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if err := finance.InsertBill(ctx, &store.Bill{UserID: "u1", Name: "Luz", Amount: 200, DueDay: 5}); err != nil {
		t.Fatal(err)
	}

	outcome, err := tool.Execute(ctx, map[string]any{"month": "2026-08"}, testSession())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !outcome.Success || outcome.Message != "Resumo de 2026-08: R$320 em gastos, 0 contas pagas, 1 pendentes" {
		t.Errorf("outcome = %+v", outcome)
	}

	data := outcome.Data.(map[string]any)
	byCategory := data["byCategory"].(map[string]float64)
	if byCategory["food"] != 50 || byCategory["transport"] != 270 {
		t.Errorf("byCategory = %v", byCategory)
	}
}

func TestResolveMonth(t *testing.T) {
	if got := resolveMonth(map[string]any{"month": "2026-03"}, "America/Sao_Paulo"); got != "2026-03" {
		t.Errorf("explicit month = %q", got)
	}
	if got := resolveMonth(map[string]any{"month": "março"}, "America/Sao_Paulo"); len(got) != 7 {
		t.Errorf("fallback month = %q", got)
	}
}
