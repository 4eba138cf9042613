// Package checkpoint persists conversation state per thread in SQLite. The
// whole state is serialized as one JSON blob per thread — a checkpoint is a
// point-in-time snapshot, not an event log — with a pending flag column so
// suspended threads can be found without deserializing.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
)

// SQLiteStore implements agent.CheckpointStore over the central database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a checkpoint store. The checkpoints table is part
// of the central schema (store.Open).
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "checkpoint"),
	}
}

// Load returns the state for a thread, or (nil, nil) when the thread has no
// checkpoint yet.
func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*agent.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %q: %w", threadID, err)
	}

	var state agent.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %q: %w", threadID, err)
	}
	return &state, nil
}

// Save upserts the state for its thread.
func (s *SQLiteStore) Save(ctx context.Context, state *agent.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint %q: %w", state.ThreadID, err)
	}

	pending := 0
	if state.Pending != nil {
		pending = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, state, pending, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET state = excluded.state,
		     pending = excluded.pending, updated_at = excluded.updated_at`,
		state.ThreadID, string(raw), pending, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", state.ThreadID, err)
	}

	s.logger.Debug("checkpoint saved",
		"thread_id", state.ThreadID,
		"messages", len(state.Messages),
		"pending", pending == 1,
	)
	return nil
}

// PendingThreads returns the IDs of threads suspended on a confirmation.
func (s *SQLiteStore) PendingThreads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id FROM checkpoints WHERE pending = 1`)
	if err != nil {
		return nil, fmt.Errorf("query pending threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
