// Package commands implementa os comandos CLI do Life Assistant usando cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd cria o comando raiz do CLI com todos os subcomandos registrados.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "assistant",
		Short: "Life Assistant - Assistente pessoal conversacional",
		Long: `Life Assistant é um assistente pessoal conversacional em Go.
Registra métricas, hábitos, finanças e memória de longo prazo via chat,
com confirmação explícita antes de qualquer escrita.

Exemplos:
  assistant chat
  assistant serve
  assistant consolidate --user <id>
  assistant setup`,
		Version: version,
	}

	// Registra subcomandos.
	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newConsolidateCmd(),
		newSetupCmd(),
	)

	// Flags globais.
	rootCmd.PersistentFlags().StringP("config", "c", "", "caminho para o arquivo de configuração")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "habilita logs detalhados")

	return rootCmd
}
