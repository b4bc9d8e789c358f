package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PaulFidika/contentgate/config"
	jwtkit "github.com/PaulFidika/contentgate/jwt"
	"github.com/spf13/cobra"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		subject string
		email   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for local testing",
		Long: "Signs a session token with ACTIVE_KEY_ID/ACTIVE_PRIVATE_KEY_PEM when set, " +
			"otherwise with auth.secret. The token is printed to stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(subject) == "" {
				return errors.New("token: --sub is required")
			}
			claims := jwtkit.SessionClaims(subject, email, cfg.Auth.Issuer, audiences(cfg), ttl)
			if cfg.Auth.Provider == "supabase" {
				claims["role"] = "authenticated"
			}
			signer, err := signerFor(cfg)
			if err != nil {
				return err
			}
			tok, err := signer.Sign(cmd.Context(), claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "Identity id (subject claim)")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func audiences(cfg *config.Config) []string {
	if cfg.Auth.Audience == "" {
		return nil
	}
	return []string{cfg.Auth.Audience}
}

// signerFor prefers the active RSA signing pair over the shared secret.
func signerFor(cfg *config.Config) (jwtkit.Signer, error) {
	kid := strings.TrimSpace(os.Getenv("ACTIVE_KEY_ID"))
	pemText := os.Getenv("ACTIVE_PRIVATE_KEY_PEM")
	if kid != "" && pemText != "" {
		return jwtkit.NewRSASignerFromPEM(kid, []byte(pemText))
	}
	if cfg.Auth.Secret == "" {
		return nil, errors.New("token: no signing key; set auth.secret or ACTIVE_KEY_ID/ACTIVE_PRIVATE_KEY_PEM")
	}
	return jwtkit.NewHMACSigner([]byte(cfg.Auth.Secret))
}
