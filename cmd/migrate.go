package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coachkit/coachd/db"
	"github.com/coachkit/coachd/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the embedded schema migrations to the configured PostgreSQL
database. Safe to run repeatedly; already-applied migrations are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied to %s:%d/%s\n",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)
	return nil
}
