package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aridosvaldez/aridos/internal/app"
	"github.com/aridosvaldez/aridos/internal/config"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newServerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Inicia el servidor central (cuentas y movimientos)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServer(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), func(context.Context) error { return a.Run() }, a.Shutdown)
		},
	}
}

func newAgentCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Inicia el agente de terminal (sesión, cola offline, notificaciones)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateAgent(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			a, err := app.NewAgent(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a.Run, a.Shutdown)
		},
	}
}

// serve runs until run returns or SIGINT/SIGTERM arrives, then shuts down.
func serve(parent context.Context, run func(context.Context) error, shutdown func(context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(runErr, shutdown(shutdownCtx))
}
