package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/social-media-api/internal/config"
	"github.com/iliyamo/social-media-api/internal/database"
	"github.com/iliyamo/social-media-api/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the users and token tables if they do not exist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		log := logging.New(cfg.LogLevel, cfg.LogFormat, nil)

		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info().Str("database", cfg.DBName).Msg("schema up to date")
		return nil
	},
}

var secretBytes int

var genSecretCmd = &cobra.Command{
	Use:   "gen-secret",
	Short: "Print a random base64 HMAC key",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := newSecret(secretBytes)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
		return err
	},
}

func init() {
	genSecretCmd.Flags().IntVar(&secretBytes, "bytes", 32, "key length in bytes")
}

func newSecret(n int) (string, error) {
	if n < 32 {
		return "", fmt.Errorf("key length %d below 32 bytes", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
