package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vendora/vendora/internal/adapter/postgres"
	"github.com/vendora/vendora/internal/config"
)

// runMigrate applies or rolls back database migrations.
func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	down := fs.Bool("down", false, "roll back instead of applying")
	steps := fs.Int("steps", 1, "how many migrations to roll back with --down")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()
	if *down {
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	} else {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	version, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Schema at version %d\n", version)
	return nil
}
