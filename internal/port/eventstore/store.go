// Package eventstore defines the port interface for the append-only event
// store and the error taxonomy its callers branch on.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vendora/vendora/internal/domain/event"
)

// ErrConflict is the sentinel wrapped by every ConflictError. Callers use
// errors.Is(err, ErrConflict) to branch on the retryable conflict case.
var ErrConflict = errors.New("optimistic concurrency conflict")

// ConflictError reports a stale expected version for one aggregate. It is
// an expected condition: the caller should re-read the aggregate and retry
// the whole command.
type ConflictError struct {
	AggregateID string
	// Expected is the version the caller believed was current.
	Expected int64
	// Actual is the version observed in the log, when known. A conflict
	// detected via the uniqueness constraint (a lost race between the
	// version read and the insert) reports Actual as -1.
	Actual int64
}

func (e *ConflictError) Error() string {
	if e.Actual < 0 {
		return fmt.Sprintf("concurrency conflict for aggregate %s: lost append race at version %d", e.AggregateID, e.Expected)
	}
	return fmt.Sprintf("concurrency conflict for aggregate %s: expected version %d, log is at %d", e.AggregateID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StorageError reports an infrastructure-level failure (connection loss,
// serialization failure unrelated to versions). Retryable at the caller's
// discretion; never silently swallowed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("event store %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// AppendOptions carries the optional inputs to Append.
type AppendOptions struct {
	// ExpectedVersion is nil for the first event of an aggregate, and
	// otherwise the version the caller believes is currently the latest.
	ExpectedVersion *int64
	// Metadata is merged into the event's own metadata (correlation and
	// causation IDs from the messaging layer, and similar).
	Metadata map[string]any
}

// Store is the port interface for the append-only event log.
type Store interface {
	// Append persists ev as the next version of its aggregate within one
	// atomic transaction. It fails with *ConflictError when the expected
	// version is stale or the append race is lost, and *StorageError for
	// infrastructure failures. Either exactly one record becomes durable,
	// or none.
	Append(ctx context.Context, ev event.DomainEvent, aggregateType string, opts AppendOptions) (*event.Record, error)

	// LoadStream returns all committed records for the aggregate, strictly
	// ordered by ascending version.
	LoadStream(ctx context.Context, aggregateID string) ([]event.Record, error)

	// ReadAllSince streams all committed records across tenants and
	// aggregates with occurred_at >= from, ordered by occurred_at with the
	// store's insertion order as the deterministic tie-break. fn is called
	// once per record; returning an error halts the stream and surfaces
	// that error.
	ReadAllSince(ctx context.Context, from time.Time, fn func(event.Record) error) error
}

// CheckpointStore persists replay progress between invocations.
type CheckpointStore interface {
	// LoadCheckpoint returns the saved checkpoint for name, or a zero
	// Checkpoint when none was saved yet.
	LoadCheckpoint(ctx context.Context, name string) (Checkpoint, error)

	// SaveCheckpoint upserts the checkpoint for name.
	SaveCheckpoint(ctx context.Context, name string, cp Checkpoint) error
}

// Checkpoint marks "already projected up to" in the global feed.
type Checkpoint struct {
	OccurredAt time.Time `json:"occurred_at"`
	GlobalSeq  int64     `json:"global_seq"`
}

// IsZero reports whether the checkpoint was never advanced.
func (c Checkpoint) IsZero() bool { return c.OccurredAt.IsZero() && c.GlobalSeq == 0 }
