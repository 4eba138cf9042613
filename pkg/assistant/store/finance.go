// Package store – finance.go is the finance repository (bills and expenses).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Bill is a recurring monthly bill.
type Bill struct {
	ID        string
	UserID    string
	Name      string
	Amount    float64
	DueDay    int
	Paid      bool
	PaidAt    time.Time
	CreatedAt time.Time
}

// Expense is one recorded expense.
type Expense struct {
	ID          string
	UserID      string
	Description string
	Amount      float64
	Category    string
	EntryDate   string // YYYY-MM-DD
	CreatedAt   time.Time
}

// FinanceSummary aggregates a month of expenses.
type FinanceSummary struct {
	Month      string             `json:"month"`
	Total      float64            `json:"total"`
	ByCategory map[string]float64 `json:"byCategory"`
	BillsDue   int                `json:"billsDue"`
	BillsPaid  int                `json:"billsPaid"`
}

// FinanceStore persists bills and expenses.
type FinanceStore struct {
	db *sql.DB
}

// NewFinanceStore creates a finance repository.
func NewFinanceStore(db *sql.DB) *FinanceStore {
	return &FinanceStore{db: db}
}

// InsertExpense stores a new expense. An empty ID gets a fresh UUID.
func (s *FinanceStore) InsertExpense(ctx context.Context, e *Expense) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Category == "" {
		e.Category = "other"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, description, amount, category, entry_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Description, e.Amount, e.Category, e.EntryDate,
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

// InsertBill stores a new bill.
func (s *FinanceStore) InsertBill(ctx context.Context, b *Bill) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bills (id, user_id, name, amount, due_day, paid, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		b.ID, b.UserID, b.Name, b.Amount, b.DueDay, b.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

// ListBills returns a user's bills, unpaid first.
func (s *FinanceStore) ListBills(ctx context.Context, userID string) ([]*Bill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, amount, due_day, paid, paid_at, created_at
		 FROM bills WHERE user_id = ? ORDER BY paid ASC, due_day ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	defer rows.Close()

	var bills []*Bill
	for rows.Next() {
		var b Bill
		var paid int
		var paidAt sql.NullString
		var createdAt string
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.Amount, &b.DueDay, &paid, &paidAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		b.Paid = paid != 0
		if paidAt.Valid {
			b.PaidAt, _ = time.Parse(time.RFC3339, paidAt.String)
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		bills = append(bills, &b)
	}
	return bills, rows.Err()
}

// FindBillByName returns the first bill whose name matches case-insensitively,
// or nil when none matches.
func (s *FinanceStore) FindBillByName(ctx context.Context, userID, name string) (*Bill, error) {
	bills, err := s.ListBills(ctx, userID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, b := range bills {
		if strings.ToLower(b.Name) == needle {
			return b, nil
		}
	}
	for _, b := range bills {
		if strings.Contains(strings.ToLower(b.Name), needle) {
			return b, nil
		}
	}
	return nil, nil
}

// MarkBillPaid marks a bill as paid at the given time.
func (s *FinanceStore) MarkBillPaid(ctx context.Context, billID string, paidAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bills SET paid = 1, paid_at = ? WHERE id = ?`,
		paidAt.UTC().Format(time.RFC3339), billID)
	if err != nil {
		return fmt.Errorf("mark bill paid: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("bill not found: %s", billID)
	}
	return nil
}

// ListExpenses returns a user's expenses for a month ("2006-01"), newest first.
func (s *FinanceStore) ListExpenses(ctx context.Context, userID, month string) ([]*Expense, error) {
	if month == "" {
		month = time.Now().UTC().Format("2006-01")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, description, amount, category, entry_date, created_at
		 FROM expenses WHERE user_id = ? AND entry_date LIKE ?
		 ORDER BY entry_date DESC, created_at DESC`,
		userID, month+"%")
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*Expense
	for rows.Next() {
		var e Expense
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Description, &e.Amount, &e.Category, &e.EntryDate, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		expenses = append(expenses, &e)
	}
	return expenses, rows.Err()
}

// Summary aggregates a user's expenses and bills for a month ("2006-01").
func (s *FinanceStore) Summary(ctx context.Context, userID, month string) (*FinanceSummary, error) {
	if month == "" {
		month = time.Now().UTC().Format("2006-01")
	}

	expenses, err := s.ListExpenses(ctx, userID, month)
	if err != nil {
		return nil, err
	}

	summary := &FinanceSummary{
		Month:      month,
		ByCategory: make(map[string]float64),
	}
	for _, e := range expenses {
		summary.Total += e.Amount
		summary.ByCategory[e.Category] += e.Amount
	}

	bills, err := s.ListBills(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, b := range bills {
		if b.Paid {
			summary.BillsPaid++
		} else {
			summary.BillsDue++
		}
	}

	return summary, nil
}
