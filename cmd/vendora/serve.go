package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	vendorahttp "github.com/vendora/vendora/internal/adapter/http"
	vnats "github.com/vendora/vendora/internal/adapter/nats"
	"github.com/vendora/vendora/internal/adapter/otel"
	"github.com/vendora/vendora/internal/adapter/postgres"
	"github.com/vendora/vendora/internal/adapter/ristretto"
	"github.com/vendora/vendora/internal/config"
	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/logger"
	"github.com/vendora/vendora/internal/port/projection"
	"github.com/vendora/vendora/internal/service"
)

// runServe runs the API server and the projection worker in one process.
func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTel, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTel(context.Background()); err != nil {
			slog.Error("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	queue, err := vnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	// Tenant resolution goes through the cache so hot lookups stay off
	// the database.
	store := postgres.NewStore(pool)
	cache, err := ristretto.New(store, cfg.Cache.MaxCost, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("tenant cache: %w", err)
	}
	defer cache.Close()
	resolver := tenant.NewResolver(cache, cache, nil)

	events := postgres.NewEventStore(pool, event.DefaultRegistry(), cfg.Replay.BatchSize)
	timeline := postgres.NewOrderTimelineProjector(pool)

	dispatcher := service.NewDispatcher(cfg.Commands.ConflictRetries, metrics)
	commerce := service.NewCommerceService(events, queue, dispatcher, metrics)
	worker := service.NewWorker(queue, []projection.Projector{timeline}, metrics)

	handlers := &vendorahttp.Handlers{
		Commerce: commerce,
		Timeline: timeline,
		DB:       pool,
		Queue:    queue,
	}
	router := vendorahttp.NewRouter(handlers, resolver, cfg.Server.CORSOrigin)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stopWorker, err := worker.Start(ctx)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		stopWorker()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runWorker runs only the projection worker, for deployments that scale
// the async side independently of the API.
func runWorker(args []string) error {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTel, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service+"-worker")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTel(context.Background()); err != nil {
			slog.Error("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	queue, err := vnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	timeline := postgres.NewOrderTimelineProjector(pool)
	worker := service.NewWorker(queue, []projection.Projector{timeline}, metrics)

	stopWorker, err := worker.Start(ctx)
	if err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	defer stopWorker()

	<-ctx.Done()
	slog.Info("worker shutting down")
	return nil
}
