package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-ledger/internal/config"
	"github.com/spec-kit/triage-ledger/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:           "triage-ledger",
	Short:         "Record-integrity and lifecycle ledger for human-in-the-loop ticket triage",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, exportCmd)
}

// bootstrap loads configuration and builds the logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}
