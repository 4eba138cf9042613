// Package tools – finance.go implements the finance domain tools:
// create_expense and mark_bill_paid (writes), get_bills / get_expenses /
// get_finance_summary (reads).
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

// ---------- create_expense ----------

// CreateExpenseTool records a one-off expense.
type CreateExpenseTool struct {
	finance *store.FinanceStore
	logger  *slog.Logger
}

// NewCreateExpenseTool creates the create_expense tool.
func NewCreateExpenseTool(finance *store.FinanceStore, logger *slog.Logger) *CreateExpenseTool {
	return &CreateExpenseTool{finance: finance, logger: logger.With("tool", "create_expense")}
}

func (t *CreateExpenseTool) Name() string { return "create_expense" }

func (t *CreateExpenseTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("create_expense",
		"Registra um gasto do usuário.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"amount": map[string]any{
					"type":        "number",
					"description": "Valor do gasto em reais",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Categoria do gasto (ex: food, transport, leisure, health, other)",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Descrição curta do gasto",
				},
				"date": map[string]any{
					"type":        "string",
					"description": "Data no formato YYYY-MM-DD. Usa hoje se omitido",
				},
			},
			"required": []string{"amount"},
		})
}

func (t *CreateExpenseTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	amount, ok := toFloat(args["amount"])
	if !ok || amount <= 0 {
		return &agent.ToolOutcome{Success: false, Error: "valor do gasto ausente ou inválido"}, nil
	}

	category, _ := args["category"].(string)
	description, _ := args["description"].(string)
	date := resolveDate(args, session.Timezone)

	expense := &store.Expense{
		UserID:      session.UserID,
		Amount:      amount,
		Category:    category,
		Description: description,
		EntryDate:   date,
	}
	if err := t.finance.InsertExpense(ctx, expense); err != nil {
		return nil, err
	}

	t.logger.Info("expense recorded", "expense_id", expense.ID, "amount", amount, "category", expense.Category)

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("Gasto de R$%s registrado em %s", formatNumber(amount), expense.Category),
		Data:    map[string]any{"expenseId": expense.ID},
	}, nil
}

// ConfirmationMessage builds the PT-BR confirmation question for this call.
func (t *CreateExpenseTool) ConfirmationMessage(args map[string]any) string {
	amount, _ := toFloat(args["amount"])
	category, _ := args["category"].(string)
	if category == "" {
		category = "other"
	}
	return fmt.Sprintf("Registrar gasto de R$%s em %s?", formatNumber(amount), category)
}

// ---------- mark_bill_paid ----------

// MarkBillPaidTool marks a recurring bill as paid, matched by name.
type MarkBillPaidTool struct {
	finance *store.FinanceStore
	logger  *slog.Logger
}

// NewMarkBillPaidTool creates the mark_bill_paid tool.
func NewMarkBillPaidTool(finance *store.FinanceStore, logger *slog.Logger) *MarkBillPaidTool {
	return &MarkBillPaidTool{finance: finance, logger: logger.With("tool", "mark_bill_paid")}
}

func (t *MarkBillPaidTool) Name() string { return "mark_bill_paid" }

func (t *MarkBillPaidTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("mark_bill_paid",
		"Marca uma conta do usuário como paga.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Nome da conta (ex: aluguel, luz, internet)",
				},
				"date": map[string]any{
					"type":        "string",
					"description": "Data do pagamento no formato YYYY-MM-DD. Usa hoje se omitido",
				},
			},
			"required": []string{"name"},
		})
}

func (t *MarkBillPaidTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	name, _ := args["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return &agent.ToolOutcome{Success: false, Error: "nome da conta ausente"}, nil
	}

	bill, err := t.finance.FindBillByName(ctx, session.UserID, name)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return &agent.ToolOutcome{
			Success: false,
			Error:   fmt.Sprintf("Conta não encontrada: %s", name),
		}, nil
	}

	date := resolveDate(args, session.Timezone)
	paidAt, err := time.Parse("2006-01-02", date)
	if err != nil {
		paidAt = time.Now().UTC()
	}
	if err := t.finance.MarkBillPaid(ctx, bill.ID, paidAt); err != nil {
		return nil, err
	}

	t.logger.Info("bill paid", "bill_id", bill.ID, "name", bill.Name, "date", date)

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("Conta '%s' marcada como paga em %s", bill.Name, date),
		Data:    map[string]any{"billId": bill.ID},
	}, nil
}

// ConfirmationMessage builds the PT-BR confirmation question for this call.
func (t *MarkBillPaidTool) ConfirmationMessage(args map[string]any) string {
	name, _ := args["name"].(string)
	date, _ := args["date"].(string)
	if date == "" {
		date = "hoje"
	}
	return fmt.Sprintf("Marcar conta '%s' como paga em %s?", name, date)
}

// ---------- get_bills ----------

// GetBillsTool lists the user's bills, unpaid first.
type GetBillsTool struct {
	finance *store.FinanceStore
}

// NewGetBillsTool creates the get_bills tool.
func NewGetBillsTool(finance *store.FinanceStore) *GetBillsTool {
	return &GetBillsTool{finance: finance}
}

func (t *GetBillsTool) Name() string { return "get_bills" }

func (t *GetBillsTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("get_bills",
		"Lista as contas do usuário, pendentes primeiro.",
		map[string]any{"type": "object", "properties": map[string]any{}})
}

func (t *GetBillsTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	bills, err := t.finance.ListBills(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(bills))
	unpaid := 0
	for _, b := range bills {
		if !b.Paid {
			unpaid++
		}
		paidAt := ""
		if !b.PaidAt.IsZero() {
			paidAt = b.PaidAt.Format("2006-01-02")
		}
		items = append(items, map[string]any{
			"name":   b.Name,
			"amount": b.Amount,
			"dueDay": b.DueDay,
			"paid":   b.Paid,
			"paidAt": paidAt,
		})
	}

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("%d contas, %d pendentes", len(items), unpaid),
		Data:    map[string]any{"bills": items},
	}, nil
}

// ---------- get_expenses ----------

// GetExpensesTool lists expenses for a month.
type GetExpensesTool struct {
	finance *store.FinanceStore
}

// NewGetExpensesTool creates the get_expenses tool.
func NewGetExpensesTool(finance *store.FinanceStore) *GetExpensesTool {
	return &GetExpensesTool{finance: finance}
}

func (t *GetExpensesTool) Name() string { return "get_expenses" }

func (t *GetExpensesTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("get_expenses",
		"Lista os gastos do usuário em um mês.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"month": map[string]any{
					"type":        "string",
					"description": "Mês no formato YYYY-MM. Usa o mês atual se omitido",
				},
			},
		})
}

func (t *GetExpensesTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	month := resolveMonth(args, session.Timezone)

	expenses, err := t.finance.ListExpenses(ctx, session.UserID, month)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(expenses))
	total := 0.0
	for _, e := range expenses {
		total += e.Amount
		items = append(items, map[string]any{
			"amount":      e.Amount,
			"category":    e.Category,
			"description": e.Description,
			"date":        e.EntryDate,
		})
	}

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("%d gastos em %s, total R$%s", len(items), month, formatNumber(total)),
		Data:    map[string]any{"expenses": items, "total": total},
	}, nil
}

// ---------- get_finance_summary ----------

// GetFinanceSummaryTool aggregates a monthly finance overview.
type GetFinanceSummaryTool struct {
	finance *store.FinanceStore
}

// NewGetFinanceSummaryTool creates the get_finance_summary tool.
func NewGetFinanceSummaryTool(finance *store.FinanceStore) *GetFinanceSummaryTool {
	return &GetFinanceSummaryTool{finance: finance}
}

func (t *GetFinanceSummaryTool) Name() string { return "get_finance_summary" }

func (t *GetFinanceSummaryTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("get_finance_summary",
		"Resumo financeiro do mês: total gasto, gastos por categoria e contas.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"month": map[string]any{
					"type":        "string",
					"description": "Mês no formato YYYY-MM. Usa o mês atual se omitido",
				},
			},
		})
}

func (t *GetFinanceSummaryTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	month := resolveMonth(args, session.Timezone)

	summary, err := t.finance.Summary(ctx, session.UserID, month)
	if err != nil {
		return nil, err
	}

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("Resumo de %s: R$%s em gastos, %d contas pagas, %d pendentes",
			summary.Month, formatNumber(summary.Total), summary.BillsPaid, summary.BillsDue),
		Data: map[string]any{
			"month":      summary.Month,
			"total":      summary.Total,
			"byCategory": summary.ByCategory,
			"billsDue":   summary.BillsDue,
			"billsPaid":  summary.BillsPaid,
		},
	}, nil
}

// resolveMonth returns args["month"] when valid, otherwise the current month
// in the session timezone.
func resolveMonth(args map[string]any, timezone string) string {
	if month, _ := args["month"].(string); month != "" {
		if _, err := time.Parse("2006-01", month); err == nil {
			return month
		}
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil || loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01")
}
