package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yz4230/shipyard/internal/server"
)

var tokenFlags struct {
	subject string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token signed with server.jwt_secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := server.IssueToken(provider.Get().Server.JWTSecret, tokenFlags.subject, tokenFlags.ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenFlags.subject, "subject", "operator", "Token subject")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")
}
