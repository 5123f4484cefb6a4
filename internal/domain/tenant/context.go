package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/vendora/vendora/internal/domain"
)

// ErrAlreadySet indicates an attempt to re-bind an already-bound Context to
// a different tenant. A unit of work sees exactly one tenant; switching
// mid-flight is programmer error.
var ErrAlreadySet = errors.New("tenant context already bound to a different tenant")

// Context holds the tenant resolved for one unit of work (one HTTP request
// or one consumed message). It is created empty at the start of the unit of
// work and bound at most once. A Context must never be shared across
// concurrent units of work.
type Context struct {
	id ID
}

// NewContext returns an empty, unbound Context.
func NewContext() *Context { return &Context{} }

// BoundContext returns a Context already bound to id, for callers that
// received the tenant out-of-band (e.g. a stamped queue message).
func BoundContext(id ID) (*Context, error) {
	if id.IsZero() {
		return nil, ErrInvalidID
	}
	return &Context{id: id}, nil
}

// Set binds the Context to id. Binding an already-bound Context to a
// different tenant fails with ErrAlreadySet; re-binding to the same tenant
// is a no-op.
func (c *Context) Set(id ID) error {
	if id.IsZero() {
		return ErrInvalidID
	}
	if !c.id.IsZero() && c.id != id {
		return fmt.Errorf("%w: have %s, got %s", ErrAlreadySet, c.id, id)
	}
	c.id = id
	return nil
}

// Get returns the bound tenant ID, or domain.ErrTenantNotFound when the
// Context was never bound.
func (c *Context) Get() (ID, error) {
	if c.id.IsZero() {
		return ID{}, domain.ErrTenantNotFound
	}
	return c.id, nil
}

// Has reports whether the Context is bound.
func (c *Context) Has() bool { return !c.id.IsZero() }

// ResolveOnce returns the bound tenant if the Context already holds one,
// and otherwise runs the resolver against req and binds the result. Layers
// deeper in the call stack may call this repeatedly; the resolver is only
// consulted the first time.
func (c *Context) ResolveOnce(ctx context.Context, r *Resolver, req Request) (ID, error) {
	if c.Has() {
		return c.id, nil
	}
	id, err := r.Resolve(ctx, req)
	if err != nil {
		return ID{}, err
	}
	if err := c.Set(id); err != nil {
		return ID{}, err
	}
	return id, nil
}
