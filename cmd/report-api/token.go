package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/report-revision-api/internal/service"
)

var (
	tokenActor string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed actor token for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		signed, expiresAt, err := service.NewIdentityService(cfg.Auth.JWTSecret).IssueToken(tokenActor, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenActor, "actor", "", "actor identity to stamp on changes")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("actor")
	rootCmd.AddCommand(tokenCmd)
}
