package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-ledger/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()
	if !pg.Enabled() {
		return errors.New("migrate: POSTGRES_DSN not set")
	}

	if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrate up: ok", zap.String("dir", cfg.Postgres.MigrationsDir))
	return nil
}
