package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/arena/internal/adapters/http/auth"
	"github.com/okian/arena/internal/config"
	"github.com/spf13/cobra"
)

var errNoOwner = errors.New("--owner is required")

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the write API",
	Long: `Token signs a bearer token whose subject is --owner using the configured
auth_secret (ARENA_AUTH_SECRET). The owner is recorded on every model the
token registers and must match for later updates and submissions.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if owner == "" {
			return errNoOwner
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		issuer, err := auth.NewIssuer(cfg.AuthSecret, ttl)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(owner)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("owner", "", "token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}
