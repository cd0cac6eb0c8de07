package main

import (
	"context"

	"github.com/MrEthical07/authx/internal/stores"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending migrations against the PostgreSQL account store.`,
		RunE:  runMigrate,
	}
	cmd.Flags().Bool("status", false, "print the applied schema version and exit")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "load config").Wrap(err)
	}
	if cfg.Store.Driver != "postgres" {
		return oops.Code("CONFIG_INVALID").Errorf("migrate requires the postgres store driver, got %q", cfg.Store.Driver)
	}

	ctx := context.Background()

	cmd.Println("Connecting to database...")
	pool, err := stores.OpenPostgres(ctx, cfg.Store.PostgresDSN)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	statusOnly, _ := cmd.Flags().GetBool("status")
	if !statusOnly {
		cmd.Println("Running migrations...")
		if err := stores.Migrate(ctx, pool); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
	}

	v, err := stores.MigrationVersion(ctx, pool)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read schema version").Wrap(err)
	}
	cmd.Printf("Schema version: %d\n", v)
	return nil
}
