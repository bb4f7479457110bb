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
	"github.com/spf13/cobra"
)

// NewUsersCmd creates the users command.
func NewUsersCmd(environ map[string]string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Inspect directory users",
	}
	cmd.AddCommand(newUsersShowCmd(environ))
	return cmd
}

func newUsersShowCmd(environ map[string]string) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user by email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			return withDB(cmd.Context(), environ, func(ctx context.Context, _ *config.Config, db *database.DB) error {
				user, err := directory.New(database.NewUserStore(db), nil).FindByEmail(ctx, email)
				if errors.Is(err, directory.ErrNotFound) {
					return fmt.Errorf("no user with email %s", email)
				}
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(user)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "User email (required)")
	return cmd
}
