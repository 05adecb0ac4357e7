package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/avatarctic/offline-sync-engine/internal/application/services"
)

var tokenClient string

// tokenCmd mints a control-channel token
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the /_engine control channel",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenClient, "client", "foreground", "Client id embedded in the token")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	token, err := services.NewTokenService(cfg.Control.JWTSecret, cfg.Control.TokenTTL).Issue(tokenClient)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(token)
}
