// Package llm – classify.go provides structured single-shot classification
// and lenient JSON parsing for model output (markdown fences, stray text).
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Classification is the structured output of a classification call.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classify runs a single classification completion: the system prompt
// describes the label set, the input is sent as the user message, and the
// model is expected to answer with JSON {"label": ..., "confidence": ...}.
// Callers decide how to handle errors — orchestration code typically falls
// back to a default label instead of propagating.
func Classify(ctx context.Context, engine Engine, systemPrompt, input string) (*Classification, error) {
	resp, err := engine.Complete(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: input},
	}, nil)
	if err != nil {
		return nil, err
	}

	var out Classification
	if err := DecodeJSON(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("parsing classification: %w", err)
	}
	if out.Label == "" {
		return nil, fmt.Errorf("classification returned empty label")
	}
	return &out, nil
}

// DecodeJSON unmarshals model output into v after stripping markdown fences.
func DecodeJSON(raw string, v any) error {
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// StripFences removes a surrounding markdown code fence (```json ... ``` or
// ``` ... ```) from model output. Returns the input trimmed if no fence is
// present.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		} else {
			text = text[3:]
		}
	}
	if strings.HasSuffix(text, "```") {
		text = text[:len(text)-3]
	}

	return strings.TrimSpace(text)
}
