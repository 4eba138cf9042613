// Package memory – consolidation.go is the background worker that distills
// recent conversations into long-term memory: profile updates, new knowledge
// items (with contradiction-driven supersession), and in-place updates.
//
// Runs per user. A user with no new messages is skipped without a single
// engine call. One user failing never stops the batch — every run ends with
// a consolidation log entry either way.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

// Summary aggregates one consolidation batch.
type Summary struct {
	UsersProcessed    int       `json:"usersProcessed"`
	UsersConsolidated int       `json:"usersConsolidated"`
	UsersSkipped      int       `json:"usersSkipped"`
	Errors            int       `json:"errors"`
	CompletedAt       time.Time `json:"completedAt"`
}

// Worker runs memory consolidation.
type Worker struct {
	engine   llm.Engine
	store    *Store
	chat     *store.ChatStore
	users    *store.UserStore
	detector *Detector
	logger   *slog.Logger
}

// NewWorker wires a consolidation worker. All storage and engine access is
// injected; the worker holds no package-level state.
func NewWorker(engine llm.Engine, memStore *Store, chat *store.ChatStore, users *store.UserStore, logger *slog.Logger) *Worker {
	return &Worker{
		engine:   engine,
		store:    memStore,
		chat:     chat,
		users:    users,
		detector: NewDetector(engine, logger),
		logger:   logger.With("component", "consolidation"),
	}
}

// RunForTimezone consolidates all active users in a timezone. Called by the
// scheduler at local 03:00 and by the manual HTTP trigger.
func (w *Worker) RunForTimezone(ctx context.Context, timezone string) (*Summary, error) {
	w.logger.Info("starting memory consolidation", "timezone", timezone)

	users, err := w.users.ListByTimezone(ctx, timezone)
	if err != nil {
		return nil, fmt.Errorf("listing users for timezone %s: %w", timezone, err)
	}

	summary := &Summary{UsersProcessed: len(users)}
	for _, user := range users {
		consolidated, err := w.processUser(ctx, user)
		if err != nil {
			summary.Errors++
			w.logger.Error("failed to consolidate user", "user_id", user.ID, "error", err)
			w.logFailure(ctx, user.ID, err)
			continue
		}
		if consolidated {
			summary.UsersConsolidated++
		} else {
			summary.UsersSkipped++
		}
	}
	summary.CompletedAt = time.Now().UTC()

	w.logger.Info("consolidation complete",
		"timezone", timezone,
		"consolidated", summary.UsersConsolidated,
		"skipped", summary.UsersSkipped,
		"errors", summary.Errors,
	)
	return summary, nil
}

// RunForUser consolidates a single user (manual trigger).
func (w *Worker) RunForUser(ctx context.Context, userID string) (*Summary, error) {
	user, err := w.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", userID, err)
	}
	if user == nil {
		w.logger.Warn("user not found for consolidation", "user_id", userID)
		return &Summary{CompletedAt: time.Now().UTC()}, nil
	}

	summary := &Summary{UsersProcessed: 1, CompletedAt: time.Now().UTC()}
	consolidated, err := w.processUser(ctx, user)
	if err != nil {
		summary.Errors = 1
		w.logger.Error("failed to consolidate user", "user_id", userID, "error", err)
		w.logFailure(ctx, userID, err)
		return summary, nil
	}
	if consolidated {
		summary.UsersConsolidated = 1
	} else {
		summary.UsersSkipped = 1
	}
	summary.CompletedAt = time.Now().UTC()
	return summary, nil
}

// ---------- Internal ----------

// processUser runs the full consolidation pipeline for one user.
// Returns true when messages were consolidated, false when skipped.
func (w *Worker) processUser(ctx context.Context, user *store.User) (bool, error) {
	w.logger.Debug("processing user", "user_id", user.ID, "name", user.Name)

	mem, err := w.store.EnsureUserMemory(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("loading user memory: %w", err)
	}

	from := mem.LastConsolidatedAt
	if from.IsZero() {
		from = mem.CreatedAt
	}
	to := time.Now().UTC()

	messages, err := w.chat.MessagesSince(ctx, user.ID, from)
	if err != nil {
		return false, fmt.Errorf("loading messages: %w", err)
	}
	if len(messages) == 0 {
		// Nothing new — no engine call, no log entry needed.
		w.logger.Debug("no messages to consolidate", "user_id", user.ID)
		return false, nil
	}

	w.logger.Info("consolidating messages", "user_id", user.ID, "messages", len(messages))

	existing, err := w.store.ActiveItems(ctx, user.ID, "", "", 100)
	if err != nil {
		return false, fmt.Errorf("loading knowledge items: %w", err)
	}

	// Phase 1: resolve contradictions already present in storage.
	superseded := w.runDeduplication(ctx, user.ID, existing)
	if superseded > 0 {
		w.logger.Info("resolved existing contradictions", "user_id", user.ID, "count", superseded)
	}

	// Phase 2: single extraction call, retried with backoff.
	prompt := BuildConsolidationPrompt(messages, mem, existing)
	var rawOutput string
	err = llm.WithRetry(ctx, llm.DefaultRetryAttempts, llm.DefaultRetryBase, func() error {
		resp, err := w.engine.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
		if err != nil {
			return err
		}
		rawOutput = resp.Content
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("extraction call: %w", err)
	}

	result, err := ParseConsolidationResponse(rawOutput, w.logger)
	if err != nil {
		return false, err
	}

	// Phase 3: apply.
	created, updated, supersededNew, err := w.applyResult(ctx, user.ID, mem, result, existing)
	if err != nil {
		return false, err
	}

	// Advance the consolidation watermark.
	mem.LastConsolidatedAt = to
	if err := w.store.SaveUserMemory(ctx, mem); err != nil {
		return false, fmt.Errorf("saving memory watermark: %w", err)
	}

	inferences := 0
	for _, item := range result.NewItems {
		if item.InferenceEvidence != "" {
			inferences++
		}
	}

	logErr := w.store.AppendLog(ctx, &ConsolidationLog{
		UserID:            user.ID,
		Status:            "completed",
		ConsolidatedFrom:  from,
		ConsolidatedTo:    to,
		MessagesProcessed: len(messages),
		ItemsCreated:      created,
		ItemsUpdated:      updated,
		ItemsSuperseded:   superseded + supersededNew,
		InferencesCreated: inferences,
		RawOutput:         rawOutput,
	})
	if logErr != nil {
		w.logger.Warn("failed to append consolidation log", "user_id", user.ID, "error", logErr)
	}

	return true, nil
}

// runDeduplication finds and resolves contradictions within same type+area
// clusters of existing items, comparing each newer item against the earlier
// ones. Returns the number of items superseded.
func (w *Worker) runDeduplication(ctx context.Context, userID string, existing []*KnowledgeItem) int {
	if len(existing) < 2 {
		return 0
	}

	grouped := make(map[string][]*KnowledgeItem)
	for _, item := range existing {
		key := item.Type + ":" + item.Area
		grouped[key] = append(grouped[key], item)
	}

	resolved := 0
	for key, items := range grouped {
		if len(items) < 2 {
			continue
		}

		// Items are ordered oldest first; compare each against its elders.
		for i := 1; i < len(items); i++ {
			newer := items[i]
			olders := items[:i]

			findings := w.detector.Check(ctx, newer.Content, olders)
			for _, f := range findings {
				var older *KnowledgeItem
				for _, o := range olders {
					if o.ID == f.ItemID {
						older = o
						break
					}
				}
				if older == nil {
					continue
				}

				keep, supersede := ResolvePriority(newer, older)
				if err := w.store.SupersedeItem(ctx, supersede.ID, keep.ID); err != nil {
					w.logger.Warn("failed to supersede item", "item_id", supersede.ID, "error", err)
					continue
				}
				w.logger.Debug("deduplication resolved contradiction",
					"group", key, "kept", keep.ID, "superseded", supersede.ID)
				resolved++
			}
		}
	}
	return resolved
}

// applyResult writes the extraction output: profile updates, new items with
// contradiction-driven supersession, and in-place updates.
func (w *Worker) applyResult(ctx context.Context, userID string, mem *UserMemory, result *ConsolidationResponse, existing []*KnowledgeItem) (created, updated, superseded int, err error) {
	// Profile field updates (nil means untouched).
	u := result.MemoryUpdates
	changed := false
	if u.Bio != nil {
		mem.Bio, changed = *u.Bio, true
	}
	if u.Occupation != nil {
		mem.Occupation, changed = *u.Occupation, true
	}
	if u.FamilyContext != nil {
		mem.FamilyContext, changed = *u.FamilyContext, true
	}
	if u.CurrentGoals != nil {
		mem.CurrentGoals, changed = u.CurrentGoals, true
	}
	if u.CurrentChallenges != nil {
		mem.CurrentChallenges, changed = u.CurrentChallenges, true
	}
	if u.TopOfMind != nil {
		mem.TopOfMind, changed = u.TopOfMind, true
	}
	if u.Values != nil {
		mem.Values, changed = u.Values, true
	}
	if u.LearnedPatterns != nil {
		mem.LearnedPatterns, changed = u.LearnedPatterns, true
	}
	if changed {
		if err := w.store.SaveUserMemory(ctx, mem); err != nil {
			return 0, 0, 0, fmt.Errorf("saving memory updates: %w", err)
		}
		w.logger.Debug("updated user memory", "user_id", userID)
	}

	// New knowledge items, each checked against its type+area cluster.
	for _, item := range result.NewItems {
		ki := &KnowledgeItem{
			UserID:            userID,
			Type:              item.Type,
			Area:              item.Area,
			SubArea:           item.SubArea,
			Title:             item.Title,
			Content:           item.Content,
			Source:            "ai_inference",
			Confidence:        item.Confidence,
			InferenceEvidence: item.InferenceEvidence,
		}
		if err := w.store.InsertItem(ctx, ki); err != nil {
			return created, updated, superseded, fmt.Errorf("inserting knowledge item: %w", err)
		}
		created++

		var sameGroup []*KnowledgeItem
		for _, ex := range existing {
			if ex.Type == item.Type && ex.Area == item.Area {
				sameGroup = append(sameGroup, ex)
			}
		}
		if len(sameGroup) == 0 {
			continue
		}

		for _, f := range w.detector.Check(ctx, item.Content, sameGroup) {
			var old *KnowledgeItem
			for _, ex := range sameGroup {
				if ex.ID == f.ItemID {
					old = ex
					break
				}
			}
			if old == nil {
				continue
			}

			// A user-validated item outranks an inferred one even when the
			// inference is newer.
			keep, supersede := ResolvePriority(ki, old)
			if err := w.store.SupersedeItem(ctx, supersede.ID, keep.ID); err != nil {
				w.logger.Warn("failed to supersede item", "item_id", supersede.ID, "error", err)
				continue
			}
			w.logger.Debug("superseded item during consolidation",
				"kept", keep.ID, "superseded", supersede.ID, "reason", f.Reason)
			superseded++
		}
	}

	// In-place updates.
	for _, upd := range result.UpdatedItems {
		if upd.ID == "" {
			continue
		}
		if err := w.store.UpdateItem(ctx, upd.ID, upd.Content, upd.Confidence); err != nil {
			w.logger.Warn("failed to update knowledge item", "item_id", upd.ID, "error", err)
			continue
		}
		updated++
	}

	return created, updated, superseded, nil
}

// logFailure appends a failed consolidation log entry (best effort).
func (w *Worker) logFailure(ctx context.Context, userID string, cause error) {
	err := w.store.AppendLog(ctx, &ConsolidationLog{
		UserID: userID,
		Status: "failed",
		Error:  cause.Error(),
	})
	if err != nil {
		w.logger.Warn("failed to append failure log", "user_id", userID, "error", err)
	}
}
