// Package tenant defines the tenant domain model and the resolution
// machinery that scopes every unit of work to exactly one tenant.
package tenant

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidID indicates a tenant identifier that failed validation.
var ErrInvalidID = errors.New("invalid tenant id")

// ID is a validated, immutable tenant identifier. The zero value is not a
// valid ID; construct one through ParseID.
type ID struct {
	value string
}

// ParseID validates raw as a canonical tenant identifier (a UUID) and
// returns the ID. Malformed input fails with ErrInvalidID; there is no
// "empty" or "default" tenant ID.
func ParseID(raw string) (ID, error) {
	u, err := uuid.Parse(raw)
	if err != nil {
		return ID{}, ErrInvalidID
	}
	return ID{value: u.String()}, nil
}

// MustID is ParseID for statically known identifiers; it panics on invalid
// input and is intended for tests and fixtures only.
func MustID(raw string) ID {
	id, err := ParseID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical textual form of the ID.
func (id ID) String() string { return id.value }

// IsZero reports whether the ID is the unusable zero value.
func (id ID) IsZero() bool { return id.value == "" }

// MarshalText encodes the ID as its canonical string, so records and
// envelopes carry the tenant as a plain UUID on the wire.
func (id ID) MarshalText() ([]byte, error) { return []byte(id.value), nil }

// UnmarshalText parses a wire-form ID. An empty string decodes to the zero
// value so a missing stamp surfaces through IsZero checks instead of a
// decode failure; anything else must be a valid UUID.
func (id *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = ID{}
		return nil
	}
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Tenant represents an isolated tenant in the system.
type Tenant struct {
	ID           ID                `json:"id"`
	Name         string            `json:"name"`
	Slug         string            `json:"slug"`
	CustomDomain string            `json:"custom_domain,omitempty"`
	Enabled      bool              `json:"enabled"`
	Settings     map[string]string `json:"settings,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// CreateRequest holds the fields required to create a new tenant.
type CreateRequest struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	CustomDomain string `json:"custom_domain,omitempty"`
}

// UpdateRequest holds the fields that can be updated on a tenant.
type UpdateRequest struct {
	Name         string `json:"name,omitempty"`
	CustomDomain string `json:"custom_domain,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
}
