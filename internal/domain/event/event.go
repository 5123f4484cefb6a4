// Package event defines the domain event model for the append-only event
// log: the events aggregates emit, and the records the store persists.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vendora/vendora/internal/domain/tenant"
)

// Name identifies the shape and meaning of an event.
type Name string

// Metadata keys merged into a record at append time.
const (
	MetaCorrelationID = "correlation_id"
	MetaCausationID   = "causation_id"
	MetaTenantID      = "tenant_id"
)

// DomainEvent is one fact about one aggregate, authored by the domain
// layer. The store turns it into a Record on append.
type DomainEvent struct {
	AggregateID string
	TenantID    tenant.ID
	Name        Name
	Payload     map[string]any
	Metadata    map[string]any
	OccurredAt  time.Time
}

// Validate checks the structural invariants a DomainEvent must satisfy
// before it can be appended.
func (e *DomainEvent) Validate() error {
	if e.AggregateID == "" {
		return errors.New("event missing aggregate id")
	}
	if e.TenantID.IsZero() {
		return errors.New("event missing tenant id")
	}
	if e.Name == "" {
		return errors.New("event missing name")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("event missing occurred_at")
	}
	return nil
}

// Record is one durable row of the event log. Records are created only by
// the store's append path and are never updated or deleted.
type Record struct {
	ID            string          `json:"id"`
	TenantID      tenant.ID       `json:"tenant_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Version       int64           `json:"version"`
	Name          Name            `json:"event_name"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      json.RawMessage `json:"metadata"`
	OccurredAt    time.Time       `json:"occurred_at"`
	RecordedAt    time.Time       `json:"recorded_at"`
	// GlobalSeq is the store-assigned insertion order, used as the
	// deterministic tie-break for the global occurred_at ordering.
	GlobalSeq int64 `json:"global_seq"`
}

// DecodePayload unmarshals the record payload into a structured map.
func (r *Record) DecodePayload() (map[string]any, error) {
	return decodeJSONMap(r.Payload, "payload")
}

// DecodeMetadata unmarshals the record metadata into a structured map.
func (r *Record) DecodeMetadata() (map[string]any, error) {
	return decodeJSONMap(r.Metadata, "metadata")
}

func decodeJSONMap(raw json.RawMessage, what string) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
