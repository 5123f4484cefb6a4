package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vendora/vendora/internal/adapter/otel"
	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/port/eventstore"
	"github.com/vendora/vendora/internal/port/projection"
)

// ErrReplayRunning indicates a replay was started while another one is
// still streaming.
var ErrReplayRunning = errors.New("replay already running")

// ReplayState is the lifecycle of one replay run.
type ReplayState string

const (
	ReplayIdle      ReplayState = "idle"
	ReplayStreaming ReplayState = "streaming"
	ReplayCompleted ReplayState = "completed"
	ReplayFailed    ReplayState = "failed"
)

// ReplayResult summarizes a finished (or failed) replay.
type ReplayResult struct {
	// Examined counts every record read from the feed.
	Examined int
	// Projected counts projector applications that ran.
	Projected int
	// Checkpoint is the last durably saved progress marker.
	Checkpoint eventstore.Checkpoint
}

// ReplayEngine re-derives read models by streaming the global event feed
// through a set of projectors, sequentially and in order. It fails fast: a
// projector error stops the replay at that event, with the checkpoint
// marking the last fully projected position so a fixed projector can
// resume instead of restarting.
type ReplayEngine struct {
	events          eventstore.Store
	checkpoints     eventstore.CheckpointStore
	projectors      []projection.Projector
	checkpointEvery int
	metrics         *otel.Metrics

	mu    sync.Mutex
	state ReplayState
}

// NewReplayEngine creates a ReplayEngine over the given projectors. An
// empty projector set makes Run a dry run that only counts the feed.
// checkpointEvery <= 0 disables intermediate checkpoints. metrics may be
// nil.
func NewReplayEngine(events eventstore.Store, checkpoints eventstore.CheckpointStore, projectors []projection.Projector, checkpointEvery int, metrics *otel.Metrics) *ReplayEngine {
	return &ReplayEngine{
		events:          events,
		checkpoints:     checkpoints,
		projectors:      projectors,
		checkpointEvery: checkpointEvery,
		metrics:         metrics,
		state:           ReplayIdle,
	}
}

// State returns the engine's current lifecycle state.
func (e *ReplayEngine) State() ReplayState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// checkpointName identifies the saved progress for this projector set.
func (e *ReplayEngine) checkpointName() string {
	names := make([]string, 0, len(e.projectors))
	for _, p := range e.projectors {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "replay:dry-run"
	}
	return "replay:" + strings.Join(names, "+")
}

// Run streams all events with occurred_at >= from through the projectors.
// A saved checkpoint past from is resumed, not re-projected (projectors
// are idempotent, so overlap on the checkpoint boundary is harmless). The
// returned result is valid even when err is non-nil.
func (e *ReplayEngine) Run(ctx context.Context, from time.Time) (ReplayResult, error) {
	e.mu.Lock()
	if e.state == ReplayStreaming {
		e.mu.Unlock()
		return ReplayResult{}, ErrReplayRunning
	}
	e.state = ReplayStreaming
	e.mu.Unlock()

	result, err := e.stream(ctx, from)

	e.mu.Lock()
	if err != nil {
		e.state = ReplayFailed
	} else {
		e.state = ReplayCompleted
	}
	e.mu.Unlock()
	return result, err
}

func (e *ReplayEngine) stream(ctx context.Context, from time.Time) (ReplayResult, error) {
	var result ReplayResult

	name := e.checkpointName()
	cp, err := e.checkpoints.LoadCheckpoint(ctx, name)
	if err != nil {
		return result, err
	}
	result.Checkpoint = cp

	projectorNames := make([]string, 0, len(e.projectors))
	for _, p := range e.projectors {
		projectorNames = append(projectorNames, p.Name())
	}
	ctx, span := otel.StartReplaySpan(ctx, from.Format(time.RFC3339), projectorNames)
	defer span.End()

	slog.Info("replay started",
		"from", from, "projectors", projectorNames, "resume_checkpoint", !cp.IsZero())

	sinceCheckpoint := 0
	err = e.events.ReadAllSince(ctx, from, func(rec event.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if behindCheckpoint(rec, cp) {
			return nil
		}
		result.Examined++
		if e.metrics != nil {
			e.metrics.EventsReplayed.Add(ctx, 1)
		}

		for _, p := range e.projectors {
			if !p.Supports(rec.Name) {
				continue
			}
			if err := e.project(ctx, p, rec); err != nil {
				return &projection.Error{
					Projector: p.Name(),
					EventID:   rec.ID,
					EventName: rec.Name,
					Err:       err,
				}
			}
			result.Projected++
		}

		sinceCheckpoint++
		if e.checkpointEvery > 0 && sinceCheckpoint >= e.checkpointEvery {
			sinceCheckpoint = 0
			next := eventstore.Checkpoint{OccurredAt: rec.OccurredAt, GlobalSeq: rec.GlobalSeq}
			if err := e.checkpoints.SaveCheckpoint(ctx, name, next); err != nil {
				return fmt.Errorf("save checkpoint: %w", err)
			}
			result.Checkpoint = next
		}
		return nil
	})
	if err != nil {
		slog.Error("replay failed",
			"examined", result.Examined, "projected", result.Projected, "error", err)
		return result, err
	}

	slog.Info("replay completed",
		"examined", result.Examined, "projected", result.Projected)
	return result, nil
}

func (e *ReplayEngine) project(ctx context.Context, p projection.Projector, rec event.Record) error {
	ctx, span := otel.StartProjectSpan(ctx, p.Name(), rec.ID)
	defer span.End()
	err := p.Project(ctx, rec)
	if err == nil && e.metrics != nil {
		e.metrics.EventsProjected.Add(ctx, 1)
	}
	return err
}

// behindCheckpoint reports whether rec was already covered by a saved
// checkpoint.
func behindCheckpoint(rec event.Record, cp eventstore.Checkpoint) bool {
	if cp.IsZero() {
		return false
	}
	if rec.OccurredAt.Before(cp.OccurredAt) {
		return true
	}
	return rec.OccurredAt.Equal(cp.OccurredAt) && rec.GlobalSeq <= cp.GlobalSeq
}
