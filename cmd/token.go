package cmd

import (
	"fmt"
	"time"

	"github.com/psds-microservice/helpdesk-service/internal/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Bearer token utilities",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token for a user id (development and service accounts)",
	RunE:  runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().Uint64("user-id", 0, "user id to put in the token subject")
	tokenIssueCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = tokenIssueCmd.MarkFlagRequired("user-id")

	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetUint64("user-id")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	if userID == 0 {
		return fmt.Errorf("--user-id must be positive")
	}
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}
	cfg, _, err := bootstrap()
	if err != nil {
		return err
	}
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}
	tok, err := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer).Issue(userID, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
