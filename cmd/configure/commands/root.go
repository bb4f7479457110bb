// Package commands implements the authgate-configure CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/benvon/authgate/internal/config"
	"github.com/benvon/authgate/internal/database"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the CLI with every subcommand. environ supplies the
// same variables the server reads.
func NewRootCmd(environ map[string]string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authgate-configure",
		Short:         "Configuration tool for authgate",
		Long:          "Manage runtime CORS and rate limit settings, inspect users and mint or inspect session tokens.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(NewCorsCmd(environ))
	cmd.AddCommand(NewRatelimitCmd(environ))
	cmd.AddCommand(NewUsersCmd(environ))
	cmd.AddCommand(NewTokenCmd(environ))
	return cmd
}

// withDB loads configuration, opens the database and runs fn.
func withDB(ctx context.Context, environ map[string]string, fn func(ctx context.Context, cfg *config.Config, db *database.DB) error) error {
	cfg, err := config.LoadFrom(environ)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()
	return fn(ctx, cfg, db)
}
