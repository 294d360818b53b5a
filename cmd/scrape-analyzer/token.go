package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/config"
)

const defaultTokenTTL = 24 * time.Hour

var errNoJWTSecret = errors.New("auth.jwt_secret (AUTH_JWT_SECRET) is not set")

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the ingest and analyze endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errNoJWTSecret
			}

			token, err := jwt.Issue(cfg.Auth.JWTSecret, subject, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime")
	return cmd
}
