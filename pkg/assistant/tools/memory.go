// Package tools – memory.go implements the memory domain tools:
// add_knowledge (write, with synchronous contradiction supersession) and
// analyze_context (read over the consolidated profile and knowledge items).
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
	"github.com/oeduardop1/life-assistant/pkg/assistant/memory"
)

const maxTitleLength = 100

var knowledgeTypeLabels = map[string]string{
	"fact":       "Fato",
	"preference": "Preferência",
	"memory":     "Memória",
	"insight":    "Insight",
	"person":     "Pessoa",
}

// ---------- add_knowledge ----------

// AddKnowledgeTool stores an explicit fact about the user. New items are
// checked against existing ones in the same type+area group; the top
// contradiction gets superseded immediately.
type AddKnowledgeTool struct {
	store    *memory.Store
	detector *memory.Detector
	logger   *slog.Logger
}

// NewAddKnowledgeTool creates the add_knowledge tool.
func NewAddKnowledgeTool(store *memory.Store, detector *memory.Detector, logger *slog.Logger) *AddKnowledgeTool {
	return &AddKnowledgeTool{
		store:    store,
		detector: detector,
		logger:   logger.With("tool", "add_knowledge"),
	}
}

func (t *AddKnowledgeTool) Name() string { return "add_knowledge" }

func (t *AddKnowledgeTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("add_knowledge",
		"Salva um fato, preferência ou informação sobre o usuário na memória de longo prazo.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "O conteúdo a salvar, em uma frase clara",
				},
				"knowledge_type": map[string]any{
					"type":        "string",
					"description": "Tipo: fact, preference, memory, insight ou person",
				},
				"area": map[string]any{
					"type":        "string",
					"description": "Área da vida: health, finance, professional, learning, spiritual ou relationships",
				},
				"confidence": map[string]any{
					"type":        "number",
					"description": "Confiança de 0 a 1 (padrão 0.9 para fatos explícitos)",
				},
			},
			"required": []string{"content"},
		})
}

func (t *AddKnowledgeTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	content, _ := args["content"].(string)
	content = strings.TrimSpace(content)
	if content == "" {
		return &agent.ToolOutcome{Success: false, Error: "conteúdo ausente"}, nil
	}

	itemType, _ := args["knowledge_type"].(string)
	if itemType == "" {
		itemType = "fact"
	}
	if !memory.ValidTypes[itemType] {
		if mapped, ok := memory.TypeAliases[itemType]; ok {
			itemType = mapped
		} else {
			return &agent.ToolOutcome{
				Success: false,
				Error:   fmt.Sprintf("Tipo inválido: %s. Use: fact, preference, memory, insight ou person", itemType),
			}, nil
		}
	}

	area, _ := args["area"].(string)
	if area != "" && !memory.ValidAreas[area] {
		area = ""
	}

	confidence := 0.9
	if c, ok := toFloat(args["confidence"]); ok {
		confidence = c
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	item := &memory.KnowledgeItem{
		UserID:          session.UserID,
		Type:            itemType,
		Area:            area,
		Title:           generateTitle(itemType, content),
		Content:         content,
		Source:          "conversation",
		Confidence:      confidence,
		ValidatedByUser: true,
	}

	// Facts the user states directly are checked against what we already
	// know; the strongest contradiction gets superseded right away.
	existing, err := t.store.ActiveItems(ctx, session.UserID, itemType, area, 50)
	if err != nil {
		return nil, err
	}

	if err := t.store.InsertItem(ctx, item); err != nil {
		return nil, err
	}

	findings := t.detector.Check(ctx, content, existing)
	if len(findings) > 0 {
		top := findings[0]
		for _, f := range findings[1:] {
			if f.Confidence > top.Confidence {
				top = f
			}
		}
		if err := t.store.SupersedeItem(ctx, top.ItemID, item.ID); err != nil {
			t.logger.Warn("failed to supersede contradicting item", "item_id", top.ItemID, "error", err)
		} else {
			t.logger.Info("superseded contradicting item",
				"old", top.ItemID, "new", item.ID, "reason", top.Reason)
		}
	}

	t.logger.Info("knowledge added", "item_id", item.ID, "type", itemType, "area", area)

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("Conhecimento adicionado: %s", item.Title),
		Data:    map[string]any{"itemId": item.ID},
	}, nil
}

// ConfirmationMessage builds the PT-BR confirmation question for this call.
func (t *AddKnowledgeTool) ConfirmationMessage(args map[string]any) string {
	content, _ := args["content"].(string)
	return fmt.Sprintf("Salvar: '%s'?", strings.TrimSpace(content))
}

// generateTitle builds "{label}: {first sentence}", capped at maxTitleLength
// runes.
func generateTitle(itemType, content string) string {
	label := knowledgeTypeLabels[itemType]
	if label == "" {
		label = "Fato"
	}

	sentence := content
	for _, sep := range []string{".", "!", "?", "\n"} {
		if idx := strings.Index(sentence, sep); idx > 0 {
			sentence = sentence[:idx]
		}
	}
	sentence = strings.TrimSpace(sentence)

	title := label + ": " + sentence
	if utf8.RuneCountInString(title) > maxTitleLength {
		runes := []rune(title)
		title = string(runes[:maxTitleLength-3]) + "..."
	}
	return title
}

// ---------- analyze_context ----------

// AnalyzeContextTool reads the consolidated profile plus active knowledge
// items so the model can reason about what it knows.
type AnalyzeContextTool struct {
	store *memory.Store
}

// NewAnalyzeContextTool creates the analyze_context tool.
func NewAnalyzeContextTool(store *memory.Store) *AnalyzeContextTool {
	return &AnalyzeContextTool{store: store}
}

func (t *AnalyzeContextTool) Name() string { return "analyze_context" }

func (t *AnalyzeContextTool) Definition() llm.ToolDefinition {
	return llm.MakeToolDefinition("analyze_context",
		"Consulta a memória de longo prazo do usuário: perfil consolidado e conhecimentos registrados.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"area": map[string]any{
					"type":        "string",
					"description": "Filtra por área da vida. Omita para todas",
				},
			},
		})
}

func (t *AnalyzeContextTool) Execute(ctx context.Context, args map[string]any, session *agent.Session) (*agent.ToolOutcome, error) {
	area, _ := args["area"].(string)
	if area != "" && !memory.ValidAreas[area] {
		area = ""
	}

	mem, err := t.store.GetUserMemory(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	items, err := t.store.ActiveItems(ctx, session.UserID, "", area, 50)
	if err != nil {
		return nil, err
	}

	profile := map[string]any{}
	if mem != nil {
		profile = map[string]any{
			"bio":               mem.Bio,
			"occupation":        mem.Occupation,
			"familyContext":     mem.FamilyContext,
			"currentGoals":      mem.CurrentGoals,
			"currentChallenges": mem.CurrentChallenges,
			"topOfMind":         mem.TopOfMind,
			"values":            mem.Values,
		}
	}

	knowledge := make([]map[string]any, 0, len(items))
	for _, it := range items {
		knowledge = append(knowledge, map[string]any{
			"type":       it.Type,
			"area":       it.Area,
			"title":      it.Title,
			"content":    it.Content,
			"confidence": it.Confidence,
		})
	}

	return &agent.ToolOutcome{
		Success: true,
		Message: fmt.Sprintf("%d conhecimentos ativos", len(knowledge)),
		Data:    map[string]any{"profile": profile, "knowledge": knowledge},
	}, nil
}
