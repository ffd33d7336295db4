package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shree113/newcd/internal/auth"
)

var (
	subjectFlag string
	ttlFlag     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for /execute",
	Long: `Sign a JWT with auth.jwt_secret. Tokens are normally issued by the quiz
application; this is for scripts and smoke tests.

Example:
  curl -H "Authorization: Bearer $(server token --subject smoke)" ...`,
	Args: cobra.NoArgs,
	RunE: mintToken,
}

func init() {
	tokenCmd.Flags().StringVar(&subjectFlag, "subject", "cli", "Subject (sub claim) of the token")
	tokenCmd.Flags().DurationVar(&ttlFlag, "ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func mintToken(cmd *cobra.Command, args []string) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	token, err := tokens.Generate(subjectFlag, ttlFlag)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
