// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates invalid input from the caller.
var ErrValidation = errors.New("validation failed")

// ErrTenantNotFound indicates no tenant could be resolved for a request.
// Callers must treat this as an access-denial condition, never as a
// fall-through to some default tenant.
var ErrTenantNotFound = errors.New("tenant not found")
