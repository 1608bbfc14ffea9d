package main

import (
	"errors"

	"github.com/spf13/cobra"

	"smart-notebook-go/pkg/token"
)

var (
	tokenUserID   uint
	tokenUsername string
	tokenAdmin    bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development JWT for the given user id",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().UintVar(&tokenUserID, "user-id", 0, "user id carried by the token")
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "optional username claim")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "grant the admin role")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	if tokenUserID == 0 {
		return errors.New("--user-id is required")
	}
	cfg := bootstrap()

	role := ""
	if tokenAdmin {
		role = token.RoleAdmin
	}
	signed, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(tokenUserID, tokenUsername, role)
	if err != nil {
		return err
	}
	cmd.Println(signed)
	return nil
}
