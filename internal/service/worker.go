package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vendora/vendora/internal/adapter/otel"
	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/middleware"
	"github.com/vendora/vendora/internal/port/messagequeue"
	"github.com/vendora/vendora/internal/port/projection"
)

// Worker consumes published event records and keeps the live read models
// current. It re-establishes the tenant from the envelope stamp before
// touching any projector; messages without a usable stamp are refused and
// never processed under a guessed tenant.
type Worker struct {
	queue      messagequeue.Queue
	projectors []projection.Projector
	metrics    *otel.Metrics
}

// NewWorker creates a Worker over the given projectors. metrics may be nil.
func NewWorker(queue messagequeue.Queue, projectors []projection.Projector, metrics *otel.Metrics) *Worker {
	return &Worker{queue: queue, projectors: projectors, metrics: metrics}
}

// Start subscribes to the event feed and returns a function that cancels
// the subscription.
func (w *Worker) Start(ctx context.Context) (func(), error) {
	stop, err := w.queue.Subscribe(ctx, messagequeue.SubjectEvents+".>", w.handle)
	if err != nil {
		return nil, fmt.Errorf("worker subscribe: %w", err)
	}
	slog.Info("worker started", "projectors", len(w.projectors))
	return stop, nil
}

// handle processes one published event. Returning an error triggers
// redelivery, except for stamp problems, which the queue adapter treats as
// terminal.
func (w *Worker) handle(ctx context.Context, subject string, data []byte) error {
	env, tid, err := messagequeue.Open(data)
	if err != nil {
		return err
	}

	var rec event.Record
	if err := json.Unmarshal(env.Body, &rec); err != nil {
		return fmt.Errorf("decode event record: %w", err)
	}
	// The stamp is the authority; a record claiming a different tenant can
	// never be processed correctly.
	if rec.TenantID != tid {
		return fmt.Errorf("record tenant %s does not match stamp %s: %w",
			rec.TenantID, tid, messagequeue.ErrMissingStamp)
	}

	tc, err := tenant.BoundContext(tid)
	if err != nil {
		return err
	}
	ctx = middleware.WithTenantContext(ctx, tc)

	for _, p := range w.projectors {
		if !p.Supports(rec.Name) {
			continue
		}
		ctx, span := otel.StartProjectSpan(ctx, p.Name(), rec.ID)
		err := p.Project(ctx, rec)
		span.End()
		if err != nil {
			return fmt.Errorf("projector %s on %s: %w", p.Name(), subject, err)
		}
		if w.metrics != nil {
			w.metrics.EventsProjected.Add(ctx, 1)
		}
	}
	return nil
}
