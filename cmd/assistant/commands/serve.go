package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oeduardop1/life-assistant/pkg/assistant/scheduler"
	"github.com/oeduardop1/life-assistant/pkg/assistant/server"
)

// newServeCmd cria o comando `assistant serve` que inicia o serviço HTTP.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Inicia o serviço HTTP com streaming SSE",
		Long: `Inicia o Life Assistant como serviço HTTP, expondo os endpoints de
chat (SSE), confirmação e consolidação manual. A consolidação noturna
roda no horário local de cada timezone com usuários ativos.

Exemplos:
  assistant serve
  assistant serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Scheduler de consolidação ──
	var sched *scheduler.Scheduler
	if a.cfg.Consolidation.Enabled {
		sched = scheduler.New(a.worker, a.users, a.cfg.Consolidation.LocalTime, a.logger)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("iniciando scheduler: %w", err)
		}
	}

	// ── Servidor HTTP ──
	srv := server.New(a.runner, a.worker, server.Options{
		ServiceToken:   a.cfg.Server.ServiceToken,
		MaxInputLength: a.cfg.Security.MaxInputLength,
	}, a.logger)

	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "addr", a.cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Aguarda shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("servidor HTTP: %w", err)
	case <-sigChan:
		a.logger.Info("shutdown signal received, stopping...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP shutdown timed out", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
