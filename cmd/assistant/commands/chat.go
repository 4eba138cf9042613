package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
)

// newChatCmd cria o comando `assistant chat` para conversas interativas.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [mensagem]",
		Short: "Conversa interativa com o assistente",
		Long: `Inicia uma conversa com o assistente. Pode enviar uma mensagem
direta ou entrar no modo interativo (sem argumentos).

Exemplos:
  assistant chat "gastei 50 reais no mercado"
  assistant chat  # modo interativo`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().StringP("user", "u", "", "ID do usuário (padrão: primeiro usuário ativo)")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	userID, err := resolveUser(ctx, cmd, a)
	if err != nil {
		return err
	}
	threadID := uuid.NewString()

	// Modo single message.
	if len(args) > 0 {
		return runTurn(ctx, a, userID, threadID, args[0])
	}

	// Modo interativo.
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "você> ",
		HistoryFile:     "/tmp/.assistant_history",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return fmt.Errorf("iniciando terminal: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%s pronto. Digite sua mensagem (Ctrl+D para sair).\n\n", a.cfg.Name)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Println("Até logo!")
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := runTurn(ctx, a, userID, threadID, line); err != nil {
			fmt.Printf("[erro] %v\n", err)
		}
	}
}

// runTurn executa um turno completo, incluindo o fluxo de confirmação
// quando o turno suspende em uma escrita pendente.
func runTurn(ctx context.Context, a *app, userID, threadID, message string) error {
	sink := &terminalSink{}
	if err := a.runner.Invoke(ctx, userID, threadID, message, sink); err != nil {
		return err
	}

	for sink.awaiting && sink.confirmation != nil {
		action, editedArgs, err := promptConfirmation(sink.confirmation)
		if err != nil {
			return err
		}

		next := &terminalSink{}
		if err := a.runner.Resume(ctx, threadID, action, editedArgs, next); err != nil {
			return err
		}
		sink = next
	}
	return nil
}

// promptConfirmation exibe o formulário confirmar/editar/rejeitar.
func promptConfirmation(p *agent.ConfirmationPayload) (string, map[string]map[string]any, error) {
	var action string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(p.Message).
			Options(
				huh.NewOption("Confirmar", agent.ActionConfirm),
				huh.NewOption("Editar", agent.ActionEdit),
				huh.NewOption("Rejeitar", agent.ActionReject),
			).
			Value(&action),
	))
	if err := form.Run(); err != nil {
		// Formulário abortado conta como rejeição.
		return agent.ActionReject, nil, nil
	}

	if action != agent.ActionEdit {
		return action, nil, nil
	}

	editedArgs := make(map[string]map[string]any, len(p.Tools))
	for _, tool := range p.Tools {
		current, _ := json.MarshalIndent(tool.ToolArgs, "", "  ")
		text := string(current)

		edit := huh.NewForm(huh.NewGroup(
			huh.NewText().
				Title(fmt.Sprintf("Argumentos de %s (JSON)", tool.ToolName)).
				Value(&text),
		))
		if err := edit.Run(); err != nil {
			continue
		}

		var args map[string]any
		if err := json.Unmarshal([]byte(text), &args); err != nil {
			fmt.Printf("[!] JSON inválido para %s, mantendo argumentos originais\n", tool.ToolName)
			continue
		}
		editedArgs[tool.ToolCallID] = args
	}
	return agent.ActionEdit, editedArgs, nil
}

// resolveUser retorna o usuário da flag, o primeiro ativo, ou cria um novo.
func resolveUser(ctx context.Context, cmd *cobra.Command, a *app) (string, error) {
	if id, _ := cmd.Flags().GetString("user"); id != "" {
		user, err := a.users.Get(ctx, id)
		if err != nil {
			return "", err
		}
		if user == nil {
			return "", fmt.Errorf("usuário não encontrado: %s", id)
		}
		return user.ID, nil
	}

	active, err := a.users.ListActive(ctx)
	if err != nil {
		return "", err
	}
	if len(active) > 0 {
		return active[0].ID, nil
	}

	user, err := a.users.Create(ctx, "Você", a.cfg.Timezone)
	if err != nil {
		return "", fmt.Errorf("criando usuário: %w", err)
	}
	fmt.Printf("Usuário criado: %s\n", user.ID)
	return user.ID, nil
}

// ---------- Terminal sink ----------

// terminalSink imprime o stream do turno no terminal.
type terminalSink struct {
	confirmation *agent.ConfirmationPayload
	awaiting     bool
	streamed     bool
}

func (s *terminalSink) Delta(content string) {
	fmt.Print(content)
	s.streamed = true
}

func (s *terminalSink) ToolCalls(calls []llm.ToolCall) {
	for _, call := range calls {
		fmt.Printf("\n⚙ %s\n", call.Function.Name)
	}
}

func (s *terminalSink) ToolResult(call llm.ToolCall, outcome *agent.ToolOutcome) {
	if outcome.Success {
		fmt.Printf("✓ %s\n", outcome.Message)
	} else {
		fmt.Printf("✗ %s\n", outcome.Error)
	}
}

func (s *terminalSink) ConfirmationRequired(p *agent.ConfirmationPayload) {
	s.confirmation = p
}

func (s *terminalSink) Done(content string, awaitingConfirmation bool) {
	s.awaiting = awaitingConfirmation
	if !s.streamed && content != "" {
		fmt.Print(content)
	}
	fmt.Println()
}

func (s *terminalSink) Error(message string) {
	fmt.Printf("\n[erro] %s\n", message)
}
