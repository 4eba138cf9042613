package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/oeduardop1/life-assistant/pkg/assistant/config"
)

// newSetupCmd cria o comando `assistant setup` para configuração interativa.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Assistente de configuração interativo",
		Long: `Inicia um assistente interativo para criar o config.yaml inicial.
Pergunta nome, modelo, timezone e endpoint da API. A API key é guardada
em um vault criptografado (AES-256-GCM) ou no keyring do sistema —
nunca em texto puro.

Exemplos:
  assistant setup`,
		RunE: runSetup,
	}
}

func runSetup(_ *cobra.Command, _ []string) error {
	reader := bufio.NewReader(os.Stdin)
	cfg := config.DefaultConfig()

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════╗")
	fmt.Println("║        Life Assistant — Setup Wizard         ║")
	fmt.Println("╚══════════════════════════════════════════════╝")
	fmt.Println()

	// ── Passo 1: Nome do assistente ──
	fmt.Printf("1. Nome do assistente [%s]: ", cfg.Name)
	if name := readLine(reader); name != "" {
		cfg.Name = name
	}

	// ── Passo 2: Modelo ──
	fmt.Printf("2. Modelo LLM [%s]: ", cfg.Model)
	if model := readLine(reader); model != "" {
		cfg.Model = model
	}

	// ── Passo 3: Timezone ──
	fmt.Printf("3. Timezone [%s]: ", cfg.Timezone)
	if tz := readLine(reader); tz != "" {
		cfg.Timezone = tz
	}

	// ── Passo 4: Endpoint da API ──
	fmt.Println()
	fmt.Println("   Endpoint da API (compatível com OpenAI):")
	fmt.Println()
	fmt.Print("4. API base URL [https://api.openai.com/v1]: ")
	if url := readLine(reader); url != "" {
		cfg.API.BaseURL = url
	}

	// ── Passo 5: API key + armazenamento seguro ──
	fmt.Println()
	fmt.Println("   Sua API key será criptografada com AES-256-GCM em um vault")
	fmt.Println("   protegido por senha mestra, ou guardada no keyring do sistema.")
	fmt.Println()
	fmt.Print("5. API key (deixe vazio para configurar depois): ")
	apiKey := readLine(reader)

	if apiKey != "" {
		if err := storeAPIKey(reader, apiKey); err != nil {
			return err
		}
	}

	// ── Grava config.yaml ──
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializando config: %w", err)
	}
	if err := os.WriteFile("config.yaml", data, 0o600); err != nil {
		return fmt.Errorf("gravando config.yaml: %w", err)
	}

	fmt.Println()
	fmt.Println("config.yaml criado. Execute 'assistant chat' para começar.")
	return nil
}

// storeAPIKey guarda a API key no vault ou no keyring, conforme escolha.
func storeAPIKey(reader *bufio.Reader, apiKey string) error {
	fmt.Println()
	fmt.Println("   Onde guardar a API key?")
	fmt.Println("   vault   — arquivo criptografado com senha mestra (recomendado)")
	fmt.Println("   keyring — keyring do sistema operacional")
	fmt.Println()
	fmt.Print("   Escolha [vault]: ")

	choice := strings.ToLower(readLine(reader))
	if choice == "" {
		choice = "vault"
	}

	switch choice {
	case "keyring":
		if !config.KeyringAvailable() {
			return fmt.Errorf("keyring do sistema indisponível, use o vault")
		}
		if err := config.StoreKeyring(config.KeyringAPIKey, apiKey); err != nil {
			return fmt.Errorf("gravando no keyring: %w", err)
		}
		fmt.Println("   API key guardada no keyring do sistema.")
		return nil

	default:
		password, err := config.ReadPassword("   Senha mestra do vault: ")
		if err != nil {
			return fmt.Errorf("lendo senha: %w", err)
		}

		vault := config.NewVault(config.VaultFile)
		if vault.Exists() {
			if err := vault.Unlock(password); err != nil {
				return fmt.Errorf("senha incorreta: %w", err)
			}
		} else {
			confirm, err := config.ReadPassword("   Confirme a senha: ")
			if err != nil {
				return fmt.Errorf("lendo senha: %w", err)
			}
			if confirm != password {
				return fmt.Errorf("senhas não conferem")
			}
			if err := vault.Create(password); err != nil {
				return fmt.Errorf("criando vault: %w", err)
			}
		}
		defer vault.Lock()

		if err := vault.Set(config.KeyringAPIKey, apiKey); err != nil {
			return fmt.Errorf("gravando no vault: %w", err)
		}
		fmt.Println("   API key guardada no vault criptografado.")
		return nil
	}
}

// readLine lê uma linha do stdin, sem o newline final.
func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
