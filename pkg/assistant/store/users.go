// Package store – users.go is the user repository.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is a registered assistant user.
type User struct {
	ID        string
	Name      string
	Timezone  string
	Active    bool
	CreatedAt time.Time
}

// UserStore persists users.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user repository.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new user and returns it. An empty ID gets a fresh UUID.
func (s *UserStore) Create(ctx context.Context, name, timezone string) (*User, error) {
	if timezone == "" {
		timezone = "America/Sao_Paulo"
	}
	u := &User{
		ID:        uuid.NewString(),
		Name:      name,
		Timezone:  timezone,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, timezone, active, created_at) VALUES (?, ?, ?, 1, ?)`,
		u.ID, u.Name, u.Timezone, u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Get returns a user by id, or nil when not found.
func (s *UserStore) Get(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, timezone, active, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListByTimezone returns all active users in a timezone.
func (s *UserStore) ListByTimezone(ctx context.Context, timezone string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, timezone, active, created_at FROM users WHERE timezone = ? AND active = 1`,
		timezone)
	if err != nil {
		return nil, fmt.Errorf("query users by timezone: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListActive returns all active users.
func (s *UserStore) ListActive(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, timezone, active, created_at FROM users WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// Timezones returns the distinct timezones of active users.
func (s *UserStore) Timezones(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT timezone FROM users WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("query timezones: %w", err)
	}
	defer rows.Close()

	var zones []string
	for rows.Next() {
		var tz string
		if err := rows.Scan(&tz); err != nil {
			return nil, err
		}
		zones = append(zones, tz)
	}
	return zones, rows.Err()
}

// ---------- Internal ----------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var active int
	var createdAt string
	err := row.Scan(&u.ID, &u.Name, &u.Timezone, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Active = active != 0
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
