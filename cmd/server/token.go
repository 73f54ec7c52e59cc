// cmd/server/token.go
package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

// token mints a bearer token for local testing against the API.
func tokenCmd() *cobra.Command {
	var (
		userID string
		name   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.IsProduction() {
				return fmt.Errorf("token issuing is disabled in production")
			}

			id := uuid.New()
			if userID != "" {
				parsed, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
				id = parsed
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.JWT.AccessTokenTTL) * time.Hour
			}

			utils.SetJWTSecret(cfg.JWT.SecretKey)
			token, err := utils.GenerateJWT(id, name, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "user_id: %s\ntoken: %s\n", id, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to embed (random if empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from JWT_ACCESS_TTL)")
	return cmd
}
