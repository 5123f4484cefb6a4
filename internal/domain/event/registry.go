package event

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownEvent indicates an event name with no registered schema.
var ErrUnknownEvent = errors.New("unknown event name")

// Schema is the explicit, versioned description of an event's payload.
// Registering a schema is what makes an event name appendable; there is no
// convention-based field matching anywhere in the event layer.
type Schema struct {
	Name    Name
	Version int
	// Required lists payload keys that must be present.
	Required []string
}

// Registry maps event names to their current schema. It is safe for
// concurrent use; registration normally happens once at startup.
type Registry struct {
	mu      sync.RWMutex
	schemas map[Name]Schema
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[Name]Schema)}
}

// Register adds or replaces the schema for an event name. A version bump
// replaces the previous schema; historical records keep the version they
// were written with.
func (r *Registry) Register(s Schema) error {
	if s.Name == "" {
		return errors.New("schema missing event name")
	}
	if s.Version < 1 {
		return fmt.Errorf("schema %s: version must be >= 1", s.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.Name] = s
	return nil
}

// Lookup returns the current schema for name.
func (r *Registry) Lookup(name Name) (Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	return s, nil
}

// Names returns all registered event names, sorted.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]Name, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ValidateEvent checks ev against the registered schema for its name and
// returns the schema version the record should be stamped with.
func (r *Registry) ValidateEvent(ev *DomainEvent) (int, error) {
	s, err := r.Lookup(ev.Name)
	if err != nil {
		return 0, err
	}
	for _, key := range s.Required {
		if _, ok := ev.Payload[key]; !ok {
			return 0, fmt.Errorf("event %s: payload missing required field %q", ev.Name, key)
		}
	}
	return s.Version, nil
}
