package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/emubot-core/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		Long: `Mint a signed API token with security.jwt.secret (or $EMUBOT_JWT_SECRET).
Roles: viewer (read only), operator (also starts and stops runs), admin
(also edits scripts and bots). The TTL defaults to security.jwt.access_token_ttl.`,
		Example: `  emubot token --subject ci --role operator --ttl 1h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.AuthEnabled() {
				return fmt.Errorf("security.jwt.secret is not set; API authentication is disabled")
			}
			if ttl == 0 {
				ttl = cfg.GetTokenTTL()
			}

			token, err := auth.GenerateToken(cfg.Security.JWT.Secret, subject, auth.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "token subject (operator or client name)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "role: viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from config)")
	_ = cmd.MarkFlagRequired("subject") //nolint:errcheck // flag exists

	return cmd
}
