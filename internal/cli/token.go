package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yungbote/intellimix-backend/internal/platform/logger"
	"github.com/yungbote/intellimix-backend/internal/services"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	Long: `Mint a token signed with the server's JWT secret. Intended for local
servers; production tokens come from the identity provider.`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().String("user", "", "user id (default: random)")
	tokenCmd.Flags().String("secret", "", "JWT secret (or MIXCTL_JWT_SECRET / JWT_SECRET_KEY)")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default 24h)")
	_ = viper.BindPFlag("jwt_secret", tokenCmd.Flags().Lookup("secret"))
	_ = viper.BindEnv("jwt_secret", "MIXCTL_JWT_SECRET", "JWT_SECRET_KEY")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	userID := uuid.New()
	if raw, _ := cmd.Flags().GetString("user"); raw != "" {
		id, err := parseUUID("user id", raw)
		if err != nil {
			return err
		}
		userID = id
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")
	auth, err := services.NewAuthService(logger.Nop(), services.AuthConfig{
		SecretKey: viper.GetString("jwt_secret"),
		AccessTTL: ttl,
		Issuer:    "intellimix",
	})
	if err != nil {
		return err
	}
	token, err := auth.IssueToken(userID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
