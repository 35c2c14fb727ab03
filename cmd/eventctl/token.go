package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prohmpiriya/event-registration/pkg/middleware"
)

func (c *cli) newTokenCmd() *cobra.Command {
	var userID, email string

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed development JWT",
		Long: `Print a bearer token signed with JWT_SECRET for the given user.

Examples:
  eventctl token --user 42
  curl -H "Authorization: Bearer $(eventctl token -u 42)" localhost:5000/api/events/mine`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return errors.New("--user is required")
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			token, err := middleware.NewTokenValidator(middleware.JWTConfig{
				Secret: cfg.JWT.Secret,
				Issuer: cfg.JWT.Issuer,
				TTL:    cfg.JWT.AccessTokenTTL,
			}).Issue(strings.TrimSpace(userID), email)
			if err != nil {
				return fmt.Errorf("signing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	tokenCmd.Flags().StringVarP(&userID, "user", "u", "", "user id to put in the token")
	tokenCmd.Flags().StringVar(&email, "email", "", "optional email claim")
	return tokenCmd
}
