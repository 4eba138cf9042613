// Package agent – registry.go defines the domain capability registry and the
// tool registry. Domains are pure data: each binds a subset of tools (with a
// write subset that requires confirmation) and a system prompt extension.
// Tool dispatch is name-keyed, the same way the engine addresses tools.
package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

// DefaultDomain is the fallback when triage fails or names an unknown domain.
const DefaultDomain = "general"

// DomainConfig binds a domain to its tools and prompt extension.
type DomainConfig struct {
	Name            string
	Tools           []string
	WriteTools      []string
	PromptExtension string
}

// IsWriteTool reports whether the named tool requires confirmation in this
// domain.
func (c DomainConfig) IsWriteTool(name string) bool {
	for _, w := range c.WriteTools {
		if w == name {
			return true
		}
	}
	return false
}

// DomainRegistry holds the fixed domain vocabulary, loaded once at startup.
type DomainRegistry struct {
	domains map[string]DomainConfig
}

// NewDomainRegistry creates the registry with the built-in domains.
func NewDomainRegistry() *DomainRegistry {
	r := &DomainRegistry{domains: make(map[string]DomainConfig)}
	for _, d := range builtinDomains() {
		r.domains[d.Name] = d
	}
	return r
}

// Lookup returns the domain config, falling back to general for unknown names.
func (r *DomainRegistry) Lookup(name string) DomainConfig {
	if d, ok := r.domains[name]; ok {
		return d
	}
	return r.domains[DefaultDomain]
}

// Has reports whether a domain is registered.
func (r *DomainRegistry) Has(name string) bool {
	_, ok := r.domains[name]
	return ok
}

// Names returns all registered domain names.
func (r *DomainRegistry) Names() []string {
	names := make([]string, 0, len(r.domains))
	for n := range r.domains {
		names = append(names, n)
	}
	return names
}

// builtinDomains is the fixed domain vocabulary.
func builtinDomains() []DomainConfig {
	return []DomainConfig{
		{
			Name:       "tracking",
			Tools:      []string{"record_metric", "record_habit", "get_history"},
			WriteTools: []string{"record_metric", "record_habit"},
			PromptExtension: "Você ajuda o usuário a registrar métricas (peso, água, sono, " +
				"exercício, humor, energia) e hábitos. Use record_metric para métricas e " +
				"record_habit para hábitos. Consulte o histórico com get_history antes de " +
				"responder perguntas sobre progresso.",
		},
		{
			Name:       "finance",
			Tools:      []string{"create_expense", "mark_bill_paid", "get_bills", "get_expenses", "get_finance_summary"},
			WriteTools: []string{"create_expense", "mark_bill_paid"},
			PromptExtension: "Você ajuda o usuário com finanças pessoais: gastos, contas e " +
				"resumos mensais. Use create_expense para registrar gastos e mark_bill_paid " +
				"para marcar contas como pagas. Valores são em reais (R$).",
		},
		{
			Name:       "memory",
			Tools:      []string{"add_knowledge", "analyze_context"},
			WriteTools: []string{"add_knowledge"},
			PromptExtension: "Você gerencia o que sabe sobre o usuário. Use add_knowledge " +
				"para salvar fatos, preferências e insights. Use analyze_context para " +
				"responder perguntas sobre o que você já sabe.",
		},
		{
			Name: "wellbeing",
			PromptExtension: "O usuário está compartilhando sentimentos ou reflexões. " +
				"Escute com empatia, valide o que ele sente e evite conselhos não " +
				"solicitados. Não use ferramentas nesta conversa.",
		},
		{
			Name: "general",
		},
	}
}

// ---------- Tool registry ----------

// Session carries per-request context every tool execution receives.
type Session struct {
	UserID   string
	Timezone string
}

// Tool is a callable capability exposed to the engine.
type Tool interface {
	Name() string
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, args map[string]any, session *Session) (*ToolOutcome, error)
}

// ConfirmationMessenger is implemented by write tools that provide a custom
// user-facing confirmation question for their pending call.
type ConfirmationMessenger interface {
	ConfirmationMessage(args map[string]any) string
}

// ToolRegistry manages tool registration and name-keyed lookup.
type ToolRegistry struct {
	tools  map[string]Tool
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	return &ToolRegistry{
		tools:  make(map[string]Tool),
		logger: logger.With("component", "tool_registry"),
	}
}

// Register adds a tool. An existing tool with the same name is overwritten.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[t.Name()] = t
	r.logger.Debug("tool registered", "name", t.Name())
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the engine tool definitions for the named tools,
// skipping names with no registered implementation.
func (r *ToolRegistry) Definitions(names []string) []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, t.Definition())
		}
	}
	return defs
}
