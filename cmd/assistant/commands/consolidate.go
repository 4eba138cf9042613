package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oeduardop1/life-assistant/pkg/assistant/memory"
)

// newConsolidateCmd cria o comando `assistant consolidate` para rodar a
// consolidação de memória manualmente.
func newConsolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Executa a consolidação de memória manualmente",
		Long: `Roda o pipeline de consolidação de memória fora do horário agendado.
Informe um usuário ou um timezone; sem flags, consolida o timezone padrão.

Exemplos:
  assistant consolidate --user 8f14e45f
  assistant consolidate --timezone America/Sao_Paulo`,
		RunE: runConsolidate,
	}

	cmd.Flags().StringP("user", "u", "", "consolida apenas este usuário")
	cmd.Flags().StringP("timezone", "t", "", "consolida todos os usuários do timezone")
	return cmd
}

func runConsolidate(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	userID, _ := cmd.Flags().GetString("user")
	timezone, _ := cmd.Flags().GetString("timezone")

	var summary *memory.Summary
	switch {
	case userID != "":
		summary, err = a.worker.RunForUser(ctx, userID)
	case timezone != "":
		summary, err = a.worker.RunForTimezone(ctx, timezone)
	default:
		summary, err = a.worker.RunForTimezone(ctx, a.cfg.Timezone)
	}
	if err != nil {
		return fmt.Errorf("consolidação: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
