// Package memory – store.go is the repository for the long-term memory
// model: knowledge items (individual facts, never deleted — superseded
// instead), the per-user consolidated profile, and the consolidation audit
// log.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Knowledge item vocabulary.
var (
	ValidTypes = map[string]bool{
		"fact": true, "preference": true, "memory": true, "insight": true, "person": true,
	}

	// TypeAliases maps loose model output to canonical types.
	TypeAliases = map[string]string{
		"challenge":   "insight",
		"goal":        "fact",
		"observation": "insight",
		"note":        "fact",
	}

	ValidAreas = map[string]bool{
		"health": true, "finance": true, "professional": true,
		"learning": true, "spiritual": true, "relationships": true,
	}
)

// KnowledgeItem is one stored fact about the user.
type KnowledgeItem struct {
	ID                string
	UserID            string
	Type              string
	Area              string
	SubArea           string
	Title             string
	Content           string
	Source            string
	Confidence        float64
	ValidatedByUser   bool
	SupersededBy      string
	InferenceEvidence string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LearnedPattern is one inferred behavioral pattern in the user profile.
type LearnedPattern struct {
	Pattern    string   `json:"pattern"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// UserMemory is the consolidated per-user profile.
type UserMemory struct {
	UserID             string
	Bio                string
	Occupation         string
	FamilyContext      string
	CurrentGoals       []string
	CurrentChallenges  []string
	TopOfMind          []string
	Values             []string
	LearnedPatterns    []LearnedPattern
	LastConsolidatedAt time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ConsolidationLog is one audit entry for a consolidation run.
type ConsolidationLog struct {
	ID                int64
	UserID            string
	Status            string // "completed" or "failed"
	ConsolidatedFrom  time.Time
	ConsolidatedTo    time.Time
	MessagesProcessed int
	ItemsCreated      int
	ItemsUpdated      int
	ItemsSuperseded   int
	InferencesCreated int
	RawOutput         string
	Error             string
	CreatedAt         time.Time
}

// Store persists the memory model.
type Store struct {
	db *sql.DB
}

// NewStore creates a memory repository.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ---------- Knowledge items ----------

// InsertItem stores a new knowledge item. An empty ID gets a fresh UUID.
func (s *Store) InsertItem(ctx context.Context, item *KnowledgeItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Source == "" {
		item.Source = "conversation"
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_items
		 (id, user_id, type, area, sub_area, title, content, source, confidence,
		  validated_by_user, superseded_by, inference_evidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?)`,
		item.ID, item.UserID, item.Type, item.Area, item.SubArea, item.Title, item.Content,
		item.Source, item.Confidence, boolInt(item.ValidatedByUser), item.InferenceEvidence,
		item.CreatedAt.Format(time.RFC3339), item.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert knowledge item: %w", err)
	}
	return nil
}

// ActiveItems returns a user's non-superseded items, oldest first, optionally
// filtered by type and area (empty string matches all).
func (s *Store) ActiveItems(ctx context.Context, userID, itemType, area string, limit int) ([]*KnowledgeItem, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, user_id, type, area, sub_area, title, content, source, confidence,
	                 validated_by_user, superseded_by, inference_evidence, created_at, updated_at
	          FROM knowledge_items WHERE user_id = ? AND superseded_by = ''`
	args := []any{userID}
	if itemType != "" {
		query += ` AND type = ?`
		args = append(args, itemType)
	}
	if area != "" {
		query += ` AND area = ?`
		args = append(args, area)
	}
	query += ` ORDER BY created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query knowledge items: %w", err)
	}
	defer rows.Close()

	var items []*KnowledgeItem
	for rows.Next() {
		var it KnowledgeItem
		var validated int
		var createdAt, updatedAt string
		if err := rows.Scan(&it.ID, &it.UserID, &it.Type, &it.Area, &it.SubArea, &it.Title,
			&it.Content, &it.Source, &it.Confidence, &validated, &it.SupersededBy,
			&it.InferenceEvidence, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge item: %w", err)
		}
		it.ValidatedByUser = validated != 0
		it.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		it.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		items = append(items, &it)
	}
	return items, rows.Err()
}

// SupersedeItem marks oldID as replaced by newID. Items are never deleted.
func (s *Store) SupersedeItem(ctx context.Context, oldID, newID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_items SET superseded_by = ?, updated_at = ? WHERE id = ?`,
		newID, time.Now().UTC().Format(time.RFC3339), oldID)
	if err != nil {
		return fmt.Errorf("supersede knowledge item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("knowledge item not found: %s", oldID)
	}
	return nil
}

// UpdateItem applies an in-place content/confidence update.
// Nil fields are left untouched.
func (s *Store) UpdateItem(ctx context.Context, id string, content *string, confidence *float64) error {
	query := `UPDATE knowledge_items SET updated_at = ?`
	args := []any{time.Now().UTC().Format(time.RFC3339)}
	if content != nil {
		query += `, content = ?`
		args = append(args, *content)
	}
	if confidence != nil {
		query += `, confidence = ?`
		args = append(args, *confidence)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update knowledge item: %w", err)
	}
	return nil
}

// ---------- User memory ----------

// GetUserMemory returns a user's profile, or nil when none exists yet.
func (s *Store) GetUserMemory(ctx context.Context, userID string) (*UserMemory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, bio, occupation, family_context, current_goals, current_challenges,
		        top_of_mind, life_values, learned_patterns, last_consolidated_at, created_at, updated_at
		 FROM user_memory WHERE user_id = ?`, userID)

	var m UserMemory
	var goals, challenges, topOfMind, values, patterns string
	var lastConsolidated sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&m.UserID, &m.Bio, &m.Occupation, &m.FamilyContext,
		&goals, &challenges, &topOfMind, &values, &patterns,
		&lastConsolidated, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user memory: %w", err)
	}

	_ = json.Unmarshal([]byte(goals), &m.CurrentGoals)
	_ = json.Unmarshal([]byte(challenges), &m.CurrentChallenges)
	_ = json.Unmarshal([]byte(topOfMind), &m.TopOfMind)
	_ = json.Unmarshal([]byte(values), &m.Values)
	_ = json.Unmarshal([]byte(patterns), &m.LearnedPatterns)
	if lastConsolidated.Valid {
		m.LastConsolidatedAt, _ = time.Parse(time.RFC3339, lastConsolidated.String)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &m, nil
}

// EnsureUserMemory returns a user's profile, creating an empty one when
// absent.
func (s *Store) EnsureUserMemory(ctx context.Context, userID string) (*UserMemory, error) {
	m, err := s.GetUserMemory(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		return m, nil
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_memory (user_id, created_at, updated_at) VALUES (?, ?, ?)`,
		userID, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert user memory: %w", err)
	}
	return &UserMemory{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

// SaveUserMemory writes the full profile back.
func (s *Store) SaveUserMemory(ctx context.Context, m *UserMemory) error {
	goals, _ := json.Marshal(orEmpty(m.CurrentGoals))
	challenges, _ := json.Marshal(orEmpty(m.CurrentChallenges))
	topOfMind, _ := json.Marshal(orEmpty(m.TopOfMind))
	values, _ := json.Marshal(orEmpty(m.Values))
	patterns, _ := json.Marshal(m.LearnedPatterns)
	if m.LearnedPatterns == nil {
		patterns = []byte("[]")
	}

	var lastConsolidated any
	if !m.LastConsolidatedAt.IsZero() {
		lastConsolidated = m.LastConsolidatedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE user_memory SET bio = ?, occupation = ?, family_context = ?,
		     current_goals = ?, current_challenges = ?, top_of_mind = ?,
		     life_values = ?, learned_patterns = ?, last_consolidated_at = ?, updated_at = ?
		 WHERE user_id = ?`,
		m.Bio, m.Occupation, m.FamilyContext,
		string(goals), string(challenges), string(topOfMind),
		string(values), string(patterns), lastConsolidated,
		time.Now().UTC().Format(time.RFC3339), m.UserID,
	)
	if err != nil {
		return fmt.Errorf("save user memory: %w", err)
	}
	return nil
}

// ---------- Consolidation log ----------

// AppendLog records one consolidation run.
func (s *Store) AppendLog(ctx context.Context, log *ConsolidationLog) error {
	var from, to any
	if !log.ConsolidatedFrom.IsZero() {
		from = log.ConsolidatedFrom.UTC().Format(time.RFC3339)
	}
	if !log.ConsolidatedTo.IsZero() {
		to = log.ConsolidatedTo.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consolidation_logs
		 (user_id, status, consolidated_from, consolidated_to, messages_processed,
		  items_created, items_updated, items_superseded, inferences_created,
		  raw_output, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.UserID, log.Status, from, to, log.MessagesProcessed,
		log.ItemsCreated, log.ItemsUpdated, log.ItemsSuperseded, log.InferencesCreated,
		log.RawOutput, log.Error, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append consolidation log: %w", err)
	}
	return nil
}

// LatestLog returns a user's most recent consolidation log entry, or nil.
func (s *Store) LatestLog(ctx context.Context, userID string) (*ConsolidationLog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, consolidated_from, consolidated_to,
		        messages_processed, items_created, items_updated, items_superseded,
		        inferences_created, raw_output, error, created_at
		 FROM consolidation_logs WHERE user_id = ?
		 ORDER BY id DESC LIMIT 1`,
		userID)

	var log ConsolidationLog
	var from, to sql.NullString
	var createdAt string
	err := row.Scan(&log.ID, &log.UserID, &log.Status, &from, &to,
		&log.MessagesProcessed, &log.ItemsCreated, &log.ItemsUpdated, &log.ItemsSuperseded,
		&log.InferencesCreated, &log.RawOutput, &log.Error, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query consolidation log: %w", err)
	}
	if from.Valid {
		log.ConsolidatedFrom, _ = time.Parse(time.RFC3339, from.String)
	}
	if to.Valid {
		log.ConsolidatedTo, _ = time.Parse(time.RFC3339, to.String)
	}
	log.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &log, nil
}

// ---------- Internal ----------

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
