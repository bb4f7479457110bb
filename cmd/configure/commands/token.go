package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/authgate/internal/config"
	"github.com/benvon/authgate/internal/database"
	"github.com/benvon/authgate/internal/directory"
	"github.com/benvon/authgate/internal/models"
	"github.com/benvon/authgate/internal/session"
	"github.com/benvon/authgate/internal/token"
	"github.com/spf13/cobra"
)

// NewTokenCmd creates the token command with issue and inspect subcommands.
func NewTokenCmd(environ map[string]string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint or inspect session tokens",
		Long:  "Tokens are signed with JWT_SECRET and live for JWT_EXPIRATION, exactly as the server issues them.",
	}
	cmd.AddCommand(newTokenIssueCmd(environ))
	cmd.AddCommand(newTokenInspectCmd(environ))
	return cmd
}

func codecFrom(cfg *config.Config) (*token.Codec, error) {
	return token.NewCodec(token.Config{SigningKey: []byte(cfg.JWTSecret), Lifetime: cfg.JWTExpiration})
}

func newTokenIssueCmd(environ map[string]string) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token for an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			return withDB(cmd.Context(), environ, func(ctx context.Context, cfg *config.Config, db *database.DB) error {
				codec, err := codecFrom(cfg)
				if err != nil {
					return err
				}
				issuer := session.NewIssuer(nil, directory.New(database.NewUserStore(db), nil), codec)
				tok, err := issuer.IssueFor(ctx, session.Provider(&models.ProviderIdentity{Email: email}))
				if errors.Is(err, directory.ErrNotFound) {
					return fmt.Errorf("no user with email %s; users are created on first login", email)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "User email (required)")
	return cmd
}

func newTokenInspectCmd(environ map[string]string) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify a token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(environ)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			codec, err := codecFrom(cfg)
			if err != nil {
				return err
			}
			result := session.NewIssuer(nil, nil, codec).Introspect(strings.TrimSpace(args[0]))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.Valid {
				return token.ErrInvalid
			}
			return nil
		},
	}
}
