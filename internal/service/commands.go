package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vendora/vendora/internal/adapter/otel"
	"github.com/vendora/vendora/internal/port/eventstore"
)

// Dispatcher runs commands with transparent retry on concurrency
// conflicts. A conflict means another writer got there first; the command
// closure re-reads current state on every attempt, so retrying it against
// the new state is safe. Anything other than a conflict surfaces
// immediately.
type Dispatcher struct {
	retries int
	metrics *otel.Metrics
}

// NewDispatcher creates a Dispatcher that retries a conflicted command up
// to retries times before surfacing the conflict. metrics may be nil.
func NewDispatcher(retries int, metrics *otel.Metrics) *Dispatcher {
	if retries < 0 {
		retries = 0
	}
	return &Dispatcher{retries: retries, metrics: metrics}
}

// Dispatch executes attempt, retrying on eventstore.ErrConflict. The
// exhausted conflict is returned wrapped, still matching
// errors.Is(err, eventstore.ErrConflict).
func (d *Dispatcher) Dispatch(ctx context.Context, command string, attempt func(ctx context.Context) error) error {
	var lastErr error
	for i := 0; i <= d.retries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, eventstore.ErrConflict) {
			return lastErr
		}
		if i < d.retries {
			slog.Warn("command conflicted, retrying",
				"command", command, "attempt", i+1, "error", lastErr)
			if d.metrics != nil {
				d.metrics.CommandRetries.Add(ctx, 1)
			}
		}
	}
	return fmt.Errorf("command %s exhausted %d retries: %w", command, d.retries, lastErr)
}
