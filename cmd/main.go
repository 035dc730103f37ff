package main

import (
	"fmt"
	"os"

	"cravebiz/internal/config"
	"cravebiz/internal/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cravebiz",
	Short: "Invoicing core: recurrence worker and tenant tooling",
	Long: `cravebiz runs the invoicing core for multi-tenant workspaces.

The worker fires recurring invoice templates on a schedule and serves the
ops HTTP surface. The remaining commands are one-shot operations against
the same database.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; the environment wins either way.
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load .env: %w", err)
		}
		cfg = config.Load()
		if err := logger.Setup(cfg.Log); err != nil {
			return fmt.Errorf("setup logger: %w", err)
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
