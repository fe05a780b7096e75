package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/lastseen/internal/server"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a trigger token",
	Long:  "Print a bearer token accepted by GET / when TRIGGER_SECRET is configured.",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "scheduler", "Who the token is issued to")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadEnvironment()
	if err != nil {
		return err
	}
	auth, err := cfg.TriggerAuth()
	if err != nil {
		return err
	}
	if auth == nil {
		return fmt.Errorf("TRIGGER_SECRET is not set, the trigger does not need a token")
	}

	token, err := server.NewTokenService(auth).GenerateToken(tokenSubject)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
