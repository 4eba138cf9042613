// Package store – db.go provides the central SQLite database for the
// assistant. A single assistant.db file holds users, conversations and
// messages, tracking entries, finance records, memory (knowledge items,
// user memory, consolidation logs), and conversation checkpoints.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Users
CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    timezone   TEXT NOT NULL DEFAULT 'America/Sao_Paulo',
    active     INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_timezone ON users(timezone);

-- Conversations (one row per chat thread).
CREATE TABLE IF NOT EXISTS conversations (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id),
    title      TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

-- Conversation messages (append-only; id makes appends idempotent).
CREATE TABLE IF NOT EXISTS messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id),
    user_id         TEXT NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL DEFAULT '',
    tool_calls      TEXT NOT NULL DEFAULT '[]',
    tool_call_id    TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at);

-- Tracking entries (metrics and habits).
CREATE TABLE IF NOT EXISTS tracking_entries (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id),
    type       TEXT NOT NULL,
    area       TEXT NOT NULL DEFAULT '',
    sub_area   TEXT NOT NULL DEFAULT '',
    value      REAL NOT NULL DEFAULT 0,
    unit       TEXT NOT NULL DEFAULT '',
    entry_date TEXT NOT NULL,
    source     TEXT NOT NULL DEFAULT 'chat',
    notes      TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracking_user_type ON tracking_entries(user_id, type, entry_date);

-- Finance: recurring bills.
CREATE TABLE IF NOT EXISTS bills (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id),
    name       TEXT NOT NULL,
    amount     REAL NOT NULL DEFAULT 0,
    due_day    INTEGER NOT NULL DEFAULT 1,
    paid       INTEGER NOT NULL DEFAULT 0,
    paid_at    TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bills_user ON bills(user_id);

-- Finance: expenses.
CREATE TABLE IF NOT EXISTS expenses (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL REFERENCES users(id),
    description TEXT NOT NULL DEFAULT '',
    amount      REAL NOT NULL,
    category    TEXT NOT NULL DEFAULT 'other',
    entry_date  TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, entry_date);

-- Memory: knowledge items (never deleted; superseded_by marks replacement).
CREATE TABLE IF NOT EXISTS knowledge_items (
    id                 TEXT PRIMARY KEY,
    user_id            TEXT NOT NULL REFERENCES users(id),
    type               TEXT NOT NULL,
    area               TEXT NOT NULL DEFAULT '',
    sub_area           TEXT NOT NULL DEFAULT '',
    title              TEXT NOT NULL DEFAULT '',
    content            TEXT NOT NULL,
    source             TEXT NOT NULL DEFAULT 'conversation',
    confidence         REAL NOT NULL DEFAULT 0.9,
    validated_by_user  INTEGER NOT NULL DEFAULT 0,
    superseded_by      TEXT NOT NULL DEFAULT '',
    inference_evidence TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knowledge_user_scope ON knowledge_items(user_id, type, area);

-- Memory: one consolidated profile per user.
CREATE TABLE IF NOT EXISTS user_memory (
    user_id              TEXT PRIMARY KEY REFERENCES users(id),
    bio                  TEXT NOT NULL DEFAULT '',
    occupation           TEXT NOT NULL DEFAULT '',
    family_context       TEXT NOT NULL DEFAULT '',
    current_goals        TEXT NOT NULL DEFAULT '[]',
    current_challenges   TEXT NOT NULL DEFAULT '[]',
    top_of_mind          TEXT NOT NULL DEFAULT '[]',
    life_values          TEXT NOT NULL DEFAULT '[]',
    learned_patterns     TEXT NOT NULL DEFAULT '[]',
    last_consolidated_at TEXT,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

-- Memory: consolidation audit log.
CREATE TABLE IF NOT EXISTS consolidation_logs (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id            TEXT NOT NULL,
    status             TEXT NOT NULL,
    consolidated_from  TEXT,
    consolidated_to    TEXT,
    messages_processed INTEGER NOT NULL DEFAULT 0,
    items_created      INTEGER NOT NULL DEFAULT 0,
    items_updated      INTEGER NOT NULL DEFAULT 0,
    items_superseded   INTEGER NOT NULL DEFAULT 0,
    inferences_created INTEGER NOT NULL DEFAULT 0,
    raw_output         TEXT NOT NULL DEFAULT '',
    error              TEXT NOT NULL DEFAULT '',
    created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_consolidation_logs_user ON consolidation_logs(user_id, created_at);

-- Conversation checkpoints (one JSON state blob per thread).
CREATE TABLE IF NOT EXISTS checkpoints (
    thread_id  TEXT PRIMARY KEY,
    state      TEXT NOT NULL,
    pending    INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
`

// Open opens (or creates) the central assistant.db at the given path.
// It enables WAL mode for concurrent read performance and creates all tables.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = "./data/assistant.db"
	}

	// Ensure parent directory exists (skip for :memory: test databases).
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	// Verify connectivity.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Create schema (idempotent).
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
