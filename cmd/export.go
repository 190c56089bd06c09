package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-ledger/internal/audit"
	"github.com/spec-kit/triage-ledger/internal/lifecycle"
	"github.com/spec-kit/triage-ledger/internal/persistence"
	"github.com/spec-kit/triage-ledger/internal/projection"
	"github.com/spec-kit/triage-ledger/internal/repository"
)

var exportOpts struct {
	ticket   string
	format   string
	compress string
	out      string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a ticket's audit trail from the journal",
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportOpts.ticket, "ticket", "", "ticket id (required)")
	f.StringVar(&exportOpts.format, "format", "json", "json, yaml or cbor")
	f.StringVar(&exportOpts.compress, "compress", "none", "none or zstd")
	f.StringVarP(&exportOpts.out, "out", "o", "", "output file (default stdout)")
	_ = exportCmd.MarkFlagRequired("ticket")
}

func runExport(cmd *cobra.Command, args []string) error {
	ticketID, err := uuid.Parse(exportOpts.ticket)
	if err != nil {
		return fmt.Errorf("export: invalid --ticket: %w", err)
	}
	format, err := audit.ParseFormat(exportOpts.format)
	if err != nil {
		return err
	}
	compression, err := audit.ParseCompression(exportOpts.compress)
	if err != nil {
		return err
	}

	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()
	if !pg.Enabled() {
		return errors.New("export: POSTGRES_DSN not set")
	}

	entries, err := repository.NewRecordJournal(pg.PoolHandle()).ListByTicket(ctx, ticketID.String())
	if err != nil {
		return fmt.Errorf("export: load journal: %w", err)
	}

	// Rebuild the ticket in a scratch ledger so the trail carries its
	// derived state and history order.
	ledger := lifecycle.NewCoordinator(lifecycle.CoordinatorDependencies{Logger: logger})
	if err := ledger.Replay(ctx, entries); err != nil {
		return fmt.Errorf("export: replay: %w", err)
	}
	trail, err := projection.NewProjector(ledger, nil).Export(ticketID)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	body, _, err := audit.Encode(trail, format, compression)
	if err != nil {
		return err
	}

	if exportOpts.out == "" {
		_, err = cmd.OutOrStdout().Write(body)
		return err
	}
	if err := os.WriteFile(exportOpts.out, body, 0o644); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.Info("audit trail exported",
		zap.String("ticket_id", ticketID.String()),
		zap.Int("records", len(trail.Records)),
		zap.String("out", exportOpts.out))
	return nil
}
