package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "social-media-api",
	Short: "Authentication token service of the social media API",
	Long: `
Usage: social-media-api [command]

  Runs the HTTP API (serve, the default), creates the database schema
  (migrate) or prints a fresh HMAC key for JWT_ACCESS_SECRET and
  JWT_REFRESH_SECRET (gen-secret). Configuration is read from the
  environment and an optional .env file.
`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, genSecretCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
