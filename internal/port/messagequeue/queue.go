// Package messagequeue defines the message queue port (interface) and the
// tenant-stamped envelope every message crosses the async boundary in.
package messagequeue

import "context"

// Handler processes a message received from the queue. The context carries
// the tenant re-established from the envelope stamp and the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects used by the commerce core.
const (
	// SubjectEvents is the prefix for persisted domain events published
	// after append. The event name is appended: events.order.created.
	SubjectEvents = "events"

	// SubjectCommandRetry carries commands re-queued after a concurrency
	// conflict exhausted its synchronous retries.
	SubjectCommandRetry = "commands.retry"
)

// EventSubject returns the publish subject for an event name.
func EventSubject(name string) string {
	return SubjectEvents + "." + name
}
