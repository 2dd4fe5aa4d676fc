package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/doxen-app/doxen/pkg/auth"
	"github.com/spf13/cobra"
)

var (
	tokenUser  string
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an identity token for local testing",
	Long: `Mint a bearer identity token signed with auth.jwtSecret.

Useful against a local gateway when no identity provider is running.`,
	Example: `  curl -H "Authorization: Bearer $(doxen token --user u1)" localhost:8080/api/v1/connections`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUser == "" {
			return errors.New("--user is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwtSecret is not configured")
		}

		token, err := auth.IssueToken(cfg.Auth.JWTSecret, tokenUser, tokenEmail, tokenTTL)
		if err != nil {
			return err
		}

		if !PrintJSON(map[string]string{"token": token}) {
			fmt.Fprintln(stdout, token)
		}
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id (sub claim)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
}
