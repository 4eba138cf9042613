// Package agent – triage.go classifies the latest user message into a
// capability domain. Triage never mutates state and never fails a turn: any
// engine error falls back to the general domain.
package agent

import (
	"context"
	"log/slog"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

const triagePrompt = `Classifique a mensagem do usuário em uma das categorias:
- "tracking": métricas (peso, água, sono, exercício, humor, energia) ou hábitos
- "finance": dinheiro, gastos, contas, despesas, investimentos, dívidas, renda
- "memory": o que a IA sabe sobre o usuário, pedir para lembrar algo
- "wellbeing": sentimentos, emoções, ansiedade, estresse, desabafos, reflexões
- "general": cumprimentos, perguntas gerais, bate-papo

Exemplos:
- "Registra 2L de agua" → tracking
- "Quanto gastei este mes?" → finance
- "O que voce sabe sobre mim?" → memory
- "Estou me sentindo ansioso" → wellbeing
- "Bom dia!" → general
- "Fiz musculação hoje" → tracking
- "Preciso pagar a conta de luz" → finance
- "Lembra que eu gosto de café" → memory
- "Tô estressado com o trabalho" → wellbeing
- "Me conta uma curiosidade" → general
- "Registra meu peso" → tracking
- "Pesei 80kg hoje" → tracking
- "Dormi 7 horas" → tracking
- "Meu humor hoje tá 7" → tracking
- "Gastei 50 reais no almoço" → finance

Responda APENAS com JSON válido, sem markdown:
{"label": "<categoria>", "confidence": 0.0 a 1.0}`

// Triage classifies user messages with a fast engine call.
type Triage struct {
	engine  llm.Engine
	domains *DomainRegistry
	logger  *slog.Logger
}

// NewTriage creates a triage classifier.
func NewTriage(engine llm.Engine, domains *DomainRegistry, logger *slog.Logger) *Triage {
	return &Triage{
		engine:  engine,
		domains: domains,
		logger:  logger.With("component", "triage"),
	}
}

// ClassifyDomain returns the capability domain for a user message.
// Any failure (engine error, bad JSON, unknown label) degrades to general.
func (t *Triage) ClassifyDomain(ctx context.Context, message string) string {
	result, err := llm.Classify(ctx, t.engine, triagePrompt, message)
	if err != nil {
		t.logger.Warn("triage failed, falling back to general", "error", err)
		return DefaultDomain
	}

	if !t.domains.Has(result.Label) {
		t.logger.Warn("triage returned unknown domain, falling back to general",
			"label", result.Label)
		return DefaultDomain
	}

	t.logger.Info("triage",
		"message", truncate(message, 80),
		"domain", result.Label,
		"confidence", result.Confidence,
	)
	return result.Label
}

// truncate shortens a string for log output.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
