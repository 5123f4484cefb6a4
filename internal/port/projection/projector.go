// Package projection defines the port interface for read-model projectors.
package projection

import (
	"context"
	"fmt"

	"github.com/vendora/vendora/internal/domain/event"
)

// Projector folds event records into a derived read model. Implementations
// must be idempotent: projecting the same record twice (which happens on
// replay overlap) leaves the read model unchanged. They hold no mutable
// state between Project calls beyond what they persist.
type Projector interface {
	// Name identifies the projector for selection and checkpointing.
	Name() string

	// Supports reports whether the projector is interested in the event.
	Supports(name event.Name) bool

	// Project applies one record to the read model.
	Project(ctx context.Context, rec event.Record) error
}

// Error reports that a specific projector could not apply a specific
// event. It halts a replay at that point; the operator fixes the projector
// and resumes from the checkpoint.
type Error struct {
	Projector string
	EventID   string
	EventName event.Name
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("projector %s failed on event %s (%s): %v", e.Projector, e.EventID, e.EventName, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
