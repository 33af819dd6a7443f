// cmd/shieldctl/token.go
package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/javajoker/creatorshield-backend/internal/models"
	"github.com/javajoker/creatorshield-backend/internal/utils"
)

func newTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for local testing",
		Long: `Sign a bearer token with the configured JWT secret. Production tokens are
issued by the identity provider; this is for development and smoke tests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Environment == "production" {
				return fmt.Errorf("token issuance is disabled in production")
			}

			actorRole := models.Role(role)
			if actorRole != models.RoleCreator && actorRole != models.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}

			id := uuid.New()
			if userID != "" {
				parsed, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
				id = parsed
			}

			utils.SetJWTSecret(cfg.JWT.SecretKey)
			utils.SetJWTIssuer(cfg.JWT.Issuer)
			if ttl <= 0 {
				ttl = time.Duration(cfg.JWT.AccessTokenTTL) * time.Hour
			}

			token, err := utils.GenerateJWT(models.Actor{ID: id, Role: actorRole}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Actor ID (random when empty)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleCreator), "Actor role: creator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default JWT_ACCESS_TTL hours)")
	return cmd
}
