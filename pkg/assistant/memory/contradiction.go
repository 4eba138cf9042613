// Package memory – contradiction.go detects semantic contradictions between
// a new fact and existing knowledge items with a single engine call, and
// implements the 3-tier priority rule that decides which of two
// contradicting items survives.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

// ContradictionThreshold is the minimum confidence for a finding to count.
const ContradictionThreshold = 0.7

const contradictionPromptFormat = `Você é um detector de contradições. Compare o NOVO FATO com cada FATO EXISTENTE e determine se há contradição.

NOVO FATO: "%s"

FATOS EXISTENTES:
%s

REGRAS:
- Contradição = informações INCOMPATÍVEIS (ex: "é solteiro" → "está namorando", "desempregado" → "trabalha como dev")
- NÃO é contradição = informações COMPLEMENTARES (ex: "gosta de café" + "prefere espresso", "mora sozinho" + "trabalha de casa")
- Atualização de status = contradição (ex: "mora em SP" → "mora no RJ", "é estudante" → "se formou")

Responda APENAS com JSON válido, sem markdown:
[
  {
    "item_id": "<UUID do fato existente>",
    "is_contradiction": true/false,
    "confidence": 0.0 a 1.0,
    "reason": "motivo breve"
  }
]

Se nenhum fato existente contradiz, retorne lista vazia: []`

// ContradictionFinding is one contradiction the detector reports.
type ContradictionFinding struct {
	ItemID     string  `json:"item_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// contradictionEntry is the raw detector output shape.
type contradictionEntry struct {
	ItemID          string  `json:"item_id"`
	IsContradiction bool    `json:"is_contradiction"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
}

// Detector finds contradictions with an engine call.
type Detector struct {
	engine llm.Engine
	logger *slog.Logger
}

// NewDetector creates a contradiction detector.
func NewDetector(engine llm.Engine, logger *slog.Logger) *Detector {
	return &Detector{
		engine: engine,
		logger: logger.With("component", "contradiction"),
	}
}

// Check compares new content against existing items and returns the
// contradictions at or above the confidence threshold. On any engine or
// parse failure it returns an empty list — the safe default is to assume no
// contradiction rather than supersede on a guess.
func (d *Detector) Check(ctx context.Context, newContent string, existing []*KnowledgeItem) []ContradictionFinding {
	if len(existing) == 0 {
		return nil
	}

	var lines []string
	byID := make(map[string]bool, len(existing))
	for _, item := range existing {
		lines = append(lines, fmt.Sprintf("- ID: %s | Conteúdo: %s", item.ID, item.Content))
		byID[item.ID] = true
	}
	prompt := fmt.Sprintf(contradictionPromptFormat, newContent, strings.Join(lines, "\n"))

	resp, err := d.engine.Complete(ctx, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		d.logger.Warn("contradiction detection failed, assuming none", "error", err)
		return nil
	}

	var entries []contradictionEntry
	if err := llm.DecodeJSON(resp.Content, &entries); err != nil {
		d.logger.Warn("contradiction response unparseable, assuming none", "error", err)
		return nil
	}

	var findings []ContradictionFinding
	for _, e := range entries {
		if !e.IsContradiction || e.Confidence < ContradictionThreshold {
			continue
		}
		if !byID[e.ItemID] {
			continue
		}
		findings = append(findings, ContradictionFinding{
			ItemID:     e.ItemID,
			Confidence: e.Confidence,
			Reason:     e.Reason,
		})
	}

	d.logger.Info("contradiction check done",
		"candidates", len(existing),
		"findings", len(findings),
		"threshold", ContradictionThreshold,
	)
	return findings
}

// ResolvePriority decides which of two contradicting items survives.
// Priority: validated_by_user > confidence > recency (newer wins).
// Returns (keep, supersede).
func ResolvePriority(newer, older *KnowledgeItem) (keep, supersede *KnowledgeItem) {
	// Tier 1: user-validated wins.
	if older.ValidatedByUser && !newer.ValidatedByUser {
		return older, newer
	}
	if newer.ValidatedByUser && !older.ValidatedByUser {
		return newer, older
	}

	// Tier 2: higher confidence wins.
	if older.Confidence > newer.Confidence {
		return older, newer
	}
	if newer.Confidence > older.Confidence {
		return newer, older
	}

	// Tier 3: recency — the newer item wins.
	return newer, older
}
