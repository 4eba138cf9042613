// Package agent – prompt.go assembles the per-turn system prompt: the core
// assistant instructions plus the active domain's extension.
package agent

import (
	"fmt"
	"strings"
	"time"
)

const corePromptFormat = `Você é %s, um assistente pessoal de vida. Seja conciso, prático e natural.
Responda sempre em %s.
Data de hoje: %s.

Quando o usuário pedir para registrar algo, use a ferramenta apropriada em vez
de apenas responder. Depois que uma ferramenta retornar sucesso, apenas confirme
o resultado em uma frase curta — NÃO chame a mesma ferramenta novamente.`

// BuildSystemPrompt composes the system prompt for one turn.
func BuildSystemPrompt(assistantName, language string, domain DomainConfig, now time.Time) string {
	if assistantName == "" {
		assistantName = "Assistant"
	}
	if language == "" {
		language = "pt-BR"
	}

	var b strings.Builder
	fmt.Fprintf(&b, corePromptFormat, assistantName, language, now.Format("2006-01-02"))

	if domain.PromptExtension != "" {
		b.WriteString("\n\n")
		b.WriteString(domain.PromptExtension)
	}

	return b.String()
}
