// Package store – tracking.go is the tracking entry repository (metrics
// and habits).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TrackingEntry is one recorded metric or habit completion.
type TrackingEntry struct {
	ID        string
	UserID    string
	Type      string
	Area      string
	SubArea   string
	Value     float64
	Unit      string
	EntryDate string // YYYY-MM-DD
	Source    string
	Notes     string
	CreatedAt time.Time
}

// TrackingStore persists tracking entries.
type TrackingStore struct {
	db *sql.DB
}

// NewTrackingStore creates a tracking repository.
func NewTrackingStore(db *sql.DB) *TrackingStore {
	return &TrackingStore{db: db}
}

// Insert stores a new tracking entry. An empty ID gets a fresh UUID.
func (s *TrackingStore) Insert(ctx context.Context, e *TrackingEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Source == "" {
		e.Source = "chat"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracking_entries (id, user_id, type, area, sub_area, value, unit, entry_date, source, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Type, e.Area, e.SubArea, e.Value, e.Unit, e.EntryDate, e.Source, e.Notes,
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert tracking entry: %w", err)
	}
	return nil
}

// ListRecent returns a user's entries of one type over the last N days,
// newest first. An empty type returns all types.
func (s *TrackingStore) ListRecent(ctx context.Context, userID, entryType string, days int) ([]*TrackingEntry, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")

	query := `SELECT id, user_id, type, area, sub_area, value, unit, entry_date, source, notes, created_at
	          FROM tracking_entries WHERE user_id = ? AND entry_date >= ?`
	args := []any{userID, cutoff}
	if entryType != "" {
		query += ` AND type = ?`
		args = append(args, entryType)
	}
	query += ` ORDER BY entry_date DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracking entries: %w", err)
	}
	defer rows.Close()

	var entries []*TrackingEntry
	for rows.Next() {
		var e TrackingEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Area, &e.SubArea, &e.Value, &e.Unit,
			&e.EntryDate, &e.Source, &e.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan tracking entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
