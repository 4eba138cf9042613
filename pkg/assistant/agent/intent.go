// Package agent – intent.go classifies a user message that arrives while a
// confirmation is pending: is the user confirming the pending operations,
// rejecting them, or talking about something else entirely?
package agent

import (
	"context"
	"fmt"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

// Confirmation intents.
const (
	IntentConfirm   = "confirm"
	IntentReject    = "reject"
	IntentUnrelated = "unrelated"
)

const intentPromptFormat = `Há uma operação aguardando confirmação do usuário:
"%s"

Classifique a resposta do usuário em uma das categorias:
- "confirm": o usuário confirma a operação (sim, pode, confirma, ok, manda ver, isso)
- "reject": o usuário recusa a operação (não, cancela, deixa pra lá, esquece)
- "unrelated": a mensagem fala de outro assunto e não responde à confirmação

Exemplos:
- "Sim" → confirm
- "pode registrar" → confirm
- "Não, cancela" → reject
- "deixa quieto" → reject
- "Quanto gastei este mês?" → unrelated
- "Bom dia!" → unrelated

Responda APENAS com JSON válido, sem markdown:
{"label": "<categoria>", "confidence": 0.0 a 1.0}`

// ClassifyConfirmationIntent classifies a user reply against a pending
// confirmation. Any failure degrades to unrelated — the safe default: the
// pending batch is dropped instead of executed on a guess.
func (t *Triage) ClassifyConfirmationIntent(ctx context.Context, pendingMessage, userMessage string) string {
	prompt := fmt.Sprintf(intentPromptFormat, pendingMessage)

	result, err := llm.Classify(ctx, t.engine, prompt, userMessage)
	if err != nil {
		t.logger.Warn("confirmation intent classification failed, treating as unrelated", "error", err)
		return IntentUnrelated
	}

	switch result.Label {
	case IntentConfirm, IntentReject, IntentUnrelated:
		t.logger.Info("confirmation intent",
			"message", truncate(userMessage, 80),
			"intent", result.Label,
			"confidence", result.Confidence,
		)
		return result.Label
	default:
		t.logger.Warn("confirmation intent returned unknown label, treating as unrelated",
			"label", result.Label)
		return IntentUnrelated
	}
}
