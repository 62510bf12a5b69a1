package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gowa-blast/config"
	"gowa-blast/database"
	"gowa-blast/internal/helper"
	"gowa-blast/internal/service"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var createSchema bool

	root := &cobra.Command{
		Use:           "gowa-blast",
		Short:         "WhatsApp session manager and bulk sender",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := helper.NewLogger(cfg.LogLevel, cfg.LogPretty)

			if createSchema {
				if err := initSchema(cfg); err != nil {
					log.Error().Err(err).Msg("create schema failed")
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := runServer(ctx, cfg, log); err != nil {
				log.Error().Err(err).Msg("server stopped with error")
				return err
			}
			return nil
		},
	}
	serve.Flags().BoolVar(&createSchema, "createschema", false, "create the audit tables before serving")

	schema := &cobra.Command{
		Use:   "createschema",
		Short: "Create the audit tables in APP_DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := initSchema(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema ready")
			return nil
		},
	}

	var (
		subject string
		role    string
		expiry  time.Duration
	)
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			switch role {
			case service.RoleAdmin, service.RoleOperator, service.RoleViewer:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if role != service.RoleAdmin && subject == "" {
				return errors.New("--subject is required for non-admin tokens")
			}
			if expiry <= 0 {
				expiry = cfg.JWTTokenExpiry
			}

			tok, err := service.NewTokenIssuer(cfg.JWTSecret, expiry).Generate(subject, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	token.Flags().StringVar(&subject, "subject", "", "session id the token is scoped to")
	token.Flags().StringVar(&role, "role", service.RoleOperator, "admin, operator or viewer")
	token.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (default JWT_ACCESS_TOKEN_EXPIRY)")

	root.AddCommand(serve, schema, token)
	return root
}

func initSchema(cfg *config.Config) error {
	if cfg.AppDatabaseURL == "" {
		return errors.New("APP_DATABASE_URL is not set")
	}
	db, err := database.OpenAppDB(cfg.AppDatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return database.InitSchema(db)
}
