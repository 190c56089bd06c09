package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/triage-ledger/internal/api/http"
	"github.com/spec-kit/triage-ledger/internal/api/http/handlers"
	"github.com/spec-kit/triage-ledger/internal/events"
	"github.com/spec-kit/triage-ledger/internal/lifecycle"
	"github.com/spec-kit/triage-ledger/internal/observability"
	"github.com/spec-kit/triage-ledger/internal/persistence"
	"github.com/spec-kit/triage-ledger/internal/projection"
	"github.com/spec-kit/triage-ledger/internal/repository"
	"github.com/spec-kit/triage-ledger/internal/service"
	"github.com/spec-kit/triage-ledger/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartRelayWorker(service.NewRelayService(dispatcher, redis, logger, cfg.Ledger))

	deps := lifecycle.CoordinatorDependencies{
		JournalTimeout: cfg.Ledger.JournalTimeout(),
		Dispatcher:     dispatcher,
		Logger:         logger,
		Metrics:        metrics,
	}
	var journal repository.RecordJournal
	if pg.Enabled() {
		journal = repository.NewRecordJournal(pg.PoolHandle())
		deps.Journal = journal
	}
	ledger := lifecycle.NewCoordinator(deps)

	if journal != nil && cfg.Ledger.ReplayOnStart {
		entries, err := journal.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load journal: %w", err)
		}
		if err := ledger.Replay(ctx, entries); err != nil {
			return fmt.Errorf("replay journal: %w", err)
		}
	}

	projector := projection.NewProjector(ledger, nil)

	app := httptransport.NewApp(httptransport.ServerDependencies{
		ServiceName:    cfg.App.Name,
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.App.RequestTimeout(),
		Routes: httptransport.RouteConfig{
			Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, ledger, map[string]handlers.Dependency{
				"postgres": pg,
				"redis":    redis,
			}),
			Records: handlers.NewRecordsHandler(ledger, nil),
			Review:  handlers.NewReviewHandler(projector, cfg.Ledger.RejectionWindow()),
			Metrics: handlers.NewMetricsHandler(metrics),
		},
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}
	return app.ShutdownWithTimeout(10 * time.Second)
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
