package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aridosvaldez/aridos/internal/accounts"
	accountspostgres "github.com/aridosvaldez/aridos/internal/accounts/postgres"
	"github.com/aridosvaldez/aridos/internal/app"
	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/pkg/postgres"
	"github.com/aridosvaldez/aridos/internal/version"
	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes de la base de datos",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}

			v, err := postgres.Migrate("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
}

func newCreateUserCmd(configPath *string) *cobra.Command {
	var email, name, role string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Crea un usuario; la contraseña se lee de stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Database.ConnectTimeout)
			defer cancel()

			logger := app.NewLogger(cfg.Log)
			db, err := postgres.Connect(ctx, postgres.Config{
				URL:             cfg.Database.URL,
				MaxOpenConns:    1,
				ConnectAttempts: cfg.Database.ConnectAttempts,
			}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			slog.SetDefault(logger)
			service := accounts.NewService(accountspostgres.NewRepository(db), nil)
			user, err := service.CreateUser(ctx, accounts.CreateUserInput{
				Email:    email,
				Name:     name,
				Password: password,
				Role:     domain.Role(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with id %s\n", user.Email, user.Role, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email del usuario")
	cmd.Flags().StringVar(&name, "name", "", "nombre completo")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleViewer), "rol: admin|operator|viewer")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Imprime el hash bcrypt de la contraseña leída de stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := accounts.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Muestra la versión",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	return password, nil
}
