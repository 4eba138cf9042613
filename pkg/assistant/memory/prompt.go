// Package memory – prompt.go builds the consolidation extraction prompt and
// parses the structured response (markdown fences, null stripping, loose
// type normalization, truncated JSON recovery).
package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
)

// MemoryUpdates carries profile field updates from the extraction response.
// Nil fields mean "no update".
type MemoryUpdates struct {
	Bio               *string          `json:"bio"`
	Occupation        *string          `json:"occupation"`
	FamilyContext     *string          `json:"familyContext"`
	CurrentGoals      []string         `json:"currentGoals"`
	CurrentChallenges []string         `json:"currentChallenges"`
	TopOfMind         []string         `json:"topOfMind"`
	Values            []string         `json:"values"`
	LearnedPatterns   []LearnedPattern `json:"learnedPatterns"`
}

// NewKnowledgeItem is one item the extraction wants created.
type NewKnowledgeItem struct {
	Type              string  `json:"type"`
	Area              string  `json:"area"`
	SubArea           string  `json:"subArea"`
	Content           string  `json:"content"`
	Title             string  `json:"title"`
	Confidence        float64 `json:"confidence"`
	InferenceEvidence string  `json:"inferenceEvidence"`
}

// UpdatedKnowledgeItem is one in-place update the extraction wants applied.
type UpdatedKnowledgeItem struct {
	ID         string   `json:"id"`
	Content    *string  `json:"content"`
	Confidence *float64 `json:"confidence"`
}

// ConsolidationResponse is the parsed extraction output.
type ConsolidationResponse struct {
	MemoryUpdates  MemoryUpdates          `json:"memory_updates"`
	NewItems       []NewKnowledgeItem     `json:"new_knowledge_items"`
	UpdatedItems   []UpdatedKnowledgeItem `json:"updated_knowledge_items"`
}

const consolidationPromptHeader = `## Tarefa: Consolidar Memória do Usuário

Analise as conversas recentes e extraia informações para atualizar a memória do usuário.

### Conversas desde a última consolidação:
%s

### Memória atual do usuário:
%s

### Knowledge Items existentes:
%s

### Instruções:
1. Identifique NOVOS fatos, preferências ou insights sobre o usuário
2. Identifique atualizações para fatos existentes
3. Faça inferências quando houver padrões (mínimo 3 ocorrências)
4. Atribua confidence score para cada item
5. O título DEVE ser um resumo fiel do conteúdo - NUNCA faça inferências no título

### Formato de saída (JSON estrito):
{
  "memory_updates": {
    "bio": "atualização se mencionado",
    "occupation": "ocupação se mencionada",
    "familyContext": "contexto familiar se mencionado",
    "currentGoals": ["novos goals se identificados"],
    "currentChallenges": ["novos challenges se identificados"],
    "topOfMind": ["prioridades atuais"],
    "values": ["valores identificados"],
    "learnedPatterns": [
      {"pattern": "padrão identificado", "confidence": 0.8, "evidence": ["evidência 1", "evidência 2"]}
    ]
  },
  "new_knowledge_items": [
    {
      "type": "fact|preference|insight|memory|person",
      "area": "health|finance|professional|learning|spiritual|relationships",
      "subArea": "(sub-área específica)",
      "content": "descrição do fato",
      "title": "título curto",
      "confidence": 0.9,
      "inferenceEvidence": "evidência se for inferência"
    }
  ],
  "updated_knowledge_items": [
    {"id": "uuid do item existente", "content": "conteúdo atualizado", "confidence": 0.95}
  ]
}

### Regras:
- Confidence >= 0.7 para inferências
- Confidence >= 0.9 para fatos explícitos
- NÃO crie duplicatas de knowledge_items existentes
- Padrões requerem mínimo 3 ocorrências
- CONTRADIÇÕES: Se identificar informação que contradiz um item existente,
  crie um novo item com a informação mais recente.
  O sistema detectará a contradição e substituirá o item antigo.

### IMPORTANTE - Consistência entre título e conteúdo:
- O título DEVE refletir EXATAMENTE o que está no conteúdo
- NUNCA faça inferências ou previsões no título
- Use os termos exatos da conversa

- Retorne APENAS o JSON, sem texto adicional`

// BuildConsolidationPrompt assembles the extraction prompt from the message
// window, the current profile, and the existing knowledge titles/ids.
func BuildConsolidationPrompt(messages []*store.StoredMessage, mem *UserMemory, existing []*KnowledgeItem) string {
	return fmt.Sprintf(consolidationPromptHeader,
		formatMessages(messages),
		formatCurrentMemory(mem),
		formatKnowledgeItems(existing),
	)
}

// ParseConsolidationResponse parses and normalizes the extraction output.
func ParseConsolidationResponse(raw string, logger *slog.Logger) (*ConsolidationResponse, error) {
	text := llm.StripFences(raw)

	var resp ConsolidationResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		// The model sometimes truncates; try the longest valid prefix.
		recovered, ok := extractPartialJSON(text)
		if !ok {
			return nil, fmt.Errorf("parsing consolidation response: %w", err)
		}
		logger.Warn("recovered partial JSON from truncated consolidation response")
		resp = *recovered
	}

	// Normalize item types; drop items whose type cannot be mapped.
	valid := resp.NewItems[:0]
	for _, item := range resp.NewItems {
		if ValidTypes[item.Type] {
			valid = append(valid, item)
			continue
		}
		if mapped, ok := TypeAliases[item.Type]; ok {
			item.Type = mapped
			valid = append(valid, item)
			continue
		}
		logger.Warn("dropping knowledge item with invalid type", "type", item.Type)
	}
	resp.NewItems = valid

	// Drop invalid areas silently; clamp confidences.
	for i := range resp.NewItems {
		if resp.NewItems[i].Area != "" && !ValidAreas[resp.NewItems[i].Area] {
			resp.NewItems[i].Area = ""
		}
		resp.NewItems[i].Confidence = clamp01(resp.NewItems[i].Confidence)
	}

	return &resp, nil
}

// ---------- Internal ----------

func formatMessages(messages []*store.StoredMessage) string {
	var lines []string
	for _, m := range messages {
		role := "Assistente"
		if m.Role == "user" {
			role = "Usuário"
		}
		ts := m.CreatedAt.Format("02/01/2006 15:04")
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", ts, role, m.Content))
	}
	return strings.Join(lines, "\n\n")
}

func formatCurrentMemory(m *UserMemory) string {
	var parts []string
	if m.Bio != "" {
		parts = append(parts, "Bio: "+m.Bio)
	}
	if m.Occupation != "" {
		parts = append(parts, "Ocupação: "+m.Occupation)
	}
	if m.FamilyContext != "" {
		parts = append(parts, "Família: "+m.FamilyContext)
	}
	if len(m.Values) > 0 {
		parts = append(parts, "Valores: "+strings.Join(m.Values, ", "))
	}
	if len(m.CurrentGoals) > 0 {
		parts = append(parts, "Objetivos: "+strings.Join(m.CurrentGoals, ", "))
	}
	if len(m.CurrentChallenges) > 0 {
		parts = append(parts, "Desafios: "+strings.Join(m.CurrentChallenges, ", "))
	}
	if len(m.TopOfMind) > 0 {
		parts = append(parts, "Em mente: "+strings.Join(m.TopOfMind, ", "))
	}
	if len(parts) == 0 {
		return "(Memória vazia)"
	}
	return strings.Join(parts, "\n")
}

func formatKnowledgeItems(items []*KnowledgeItem) string {
	if len(items) == 0 {
		return "(Nenhum conhecimento registrado)"
	}
	var lines []string
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("[%s] (%s) %s: %s", it.ID, it.Type, it.Title, it.Content))
	}
	return strings.Join(lines, "\n")
}

// extractPartialJSON tries progressively shorter prefixes ending at a
// closing brace until one parses.
func extractPartialJSON(text string) (*ConsolidationResponse, bool) {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] != '}' {
			continue
		}
		var resp ConsolidationResponse
		if err := json.Unmarshal([]byte(text[:i+1]), &resp); err == nil {
			return &resp, true
		}
	}
	return nil, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
