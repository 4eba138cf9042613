// Package commands – app.go monta a aplicação: config, logger, banco,
// engines, ferramentas e runner. Compartilhado entre serve, chat e
// consolidate.
package commands

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oeduardop1/life-assistant/pkg/assistant/agent"
	"github.com/oeduardop1/life-assistant/pkg/assistant/checkpoint"
	"github.com/oeduardop1/life-assistant/pkg/assistant/config"
	"github.com/oeduardop1/life-assistant/pkg/assistant/llm"
	"github.com/oeduardop1/life-assistant/pkg/assistant/memory"
	"github.com/oeduardop1/life-assistant/pkg/assistant/store"
	"github.com/oeduardop1/life-assistant/pkg/assistant/tools"
)

// app agrupa as dependências montadas de uma execução.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	users    *store.UserStore
	chat     *store.ChatStore
	memory   *memory.Store
	runner   *agent.Runner
	worker   *memory.Worker
	detector *memory.Detector
}

// close libera os recursos da aplicação.
func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// buildApp carrega config, resolve segredos e conecta todos os componentes.
func buildApp(cmd *cobra.Command) (*app, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := buildLogger(cmd, cfg)

	// Resolve API key: vault → keyring → env → config.
	config.ResolveAPIKey(cfg, logger)
	if cfg.API.APIKey == "" {
		return nil, fmt.Errorf("API key não configurada. Execute: assistant setup")
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("abrindo banco de dados: %w", err)
	}

	users := store.NewUserStore(db)
	chat := store.NewChatStore(db)
	tracking := store.NewTrackingStore(db)
	finance := store.NewFinanceStore(db)
	memStore := memory.NewStore(db)
	checkpoints := checkpoint.NewSQLiteStore(db, logger)

	engine := llm.NewClient(cfg.API.BaseURL, cfg.API.APIKey, cfg.Model, logger)
	triageModel := cfg.TriageModel
	if triageModel == "" {
		triageModel = cfg.Model
	}
	triageEngine := llm.NewClient(cfg.API.BaseURL, cfg.API.APIKey, triageModel, logger)

	detector := memory.NewDetector(engine, logger)

	domains := agent.NewDomainRegistry()
	toolReg := agent.NewToolRegistry(logger)
	toolReg.Register(tools.NewRecordMetricTool(tracking, logger))
	toolReg.Register(tools.NewRecordHabitTool(tracking, logger))
	toolReg.Register(tools.NewGetHistoryTool(tracking))
	toolReg.Register(tools.NewCreateExpenseTool(finance, logger))
	toolReg.Register(tools.NewMarkBillPaidTool(finance, logger))
	toolReg.Register(tools.NewGetBillsTool(finance))
	toolReg.Register(tools.NewGetExpensesTool(finance))
	toolReg.Register(tools.NewGetFinanceSummaryTool(finance))
	toolReg.Register(tools.NewAddKnowledgeTool(memStore, detector, logger))
	toolReg.Register(tools.NewAnalyzeContextTool(memStore))

	ttl := time.Duration(cfg.Confirmation.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = agent.DefaultConfirmationTTL
	}
	executor := agent.NewConfirmableExecutor(toolReg, ttl, logger)
	triage := agent.NewTriage(triageEngine, domains, logger)

	runner := agent.NewRunner(engine, triage, domains, toolReg, executor, checkpoints, chat,
		agent.RunnerOptions{
			Name:     cfg.Name,
			Language: cfg.Language,
			Timezone: cfg.Timezone,
		}, logger)

	worker := memory.NewWorker(engine, memStore, chat, users, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		users:    users,
		chat:     chat,
		memory:   memStore,
		runner:   runner,
		worker:   worker,
		detector: detector,
	}, nil
}

// resolveConfig carrega a configuração do caminho informado ou dos locais
// padrão.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("carregando config: %w", err)
		}
		return cfg, nil
	}
	return config.Load()
}

// buildLogger monta o slog conforme a config e a flag --verbose.
func buildLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}
