package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vendora/vendora/internal/adapter/postgres"
	"github.com/vendora/vendora/internal/config"
	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/logger"
	"github.com/vendora/vendora/internal/port/projection"
	"github.com/vendora/vendora/internal/service"
)

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// runReplay rebuilds the selected read models from the event log. With no
// --projector flags it runs a dry run that only counts events.
func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fromFlag := fs.String("from", "", "RFC3339 start time (default: beginning of the log)")
	var names stringList
	fs.Var(&names, "projector", "projector to rebuild (repeatable; none = dry run)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var from time.Time
	if *fromFlag != "" {
		var err error
		from, err = time.Parse(time.RFC3339, *fromFlag)
		if err != nil {
			return fmt.Errorf("parse --from: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	available := map[string]projection.Projector{}
	for _, p := range []projection.Projector{postgres.NewOrderTimelineProjector(pool)} {
		available[p.Name()] = p
	}

	var projectors []projection.Projector
	for _, name := range names {
		p, ok := available[name]
		if !ok {
			return fmt.Errorf("unknown projector %q (available: %s)", name, availableNames(available))
		}
		projectors = append(projectors, p)
	}

	events := postgres.NewEventStore(pool, event.DefaultRegistry(), cfg.Replay.BatchSize)
	checkpoints := postgres.NewCheckpointStore(pool)
	engine := service.NewReplayEngine(events, checkpoints, projectors, cfg.Replay.CheckpointEvery, nil)

	result, err := engine.Run(ctx, from)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	fmt.Printf("examined %d events, projected %d\n", result.Examined, result.Projected)
	return nil
}

func availableNames(m map[string]projection.Projector) string {
	var names []string
	for name := range m {
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}
