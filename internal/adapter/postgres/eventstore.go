package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/port/eventstore"
)

const defaultReadBatch = 500

// EventStore implements eventstore.Store on the append-only event_store
// table. Rows are inserted exactly once and never updated or deleted.
type EventStore struct {
	pool      *pgxpool.Pool
	registry  *event.Registry
	readBatch int
}

// NewEventStore creates an EventStore. Every appended event is validated
// against the registry and stamped with its current schema version.
// readBatch is the page size for ReadAllSince; zero or negative selects
// the default.
func NewEventStore(pool *pgxpool.Pool, registry *event.Registry, readBatch int) *EventStore {
	if readBatch <= 0 {
		readBatch = defaultReadBatch
	}
	return &EventStore{pool: pool, registry: registry, readBatch: readBatch}
}

const recordColumns = `id, tenant_id, aggregate_type, aggregate_id, version, event_name, schema_version, payload, metadata, occurred_at, recorded_at, global_seq`

// Append persists ev as the next version of its aggregate. The version
// check and the insert run in one transaction; the unique constraint on
// (aggregate_id, version) catches the race where two appenders read the
// same current version, so at most one of them commits.
func (s *EventStore) Append(ctx context.Context, ev event.DomainEvent, aggregateType string, opts eventstore.AppendOptions) (*event.Record, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	schemaVersion, err := s.registry.ValidateEvent(&ev)
	if err != nil {
		return nil, err
	}

	payloadJSON, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	metadataJSON, err := json.Marshal(mergeMetadata(ev, opts.Metadata))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &eventstore.StorageError{Op: "append", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM event_store WHERE aggregate_id = $1`,
		ev.AggregateID,
	).Scan(&current)
	if err != nil {
		return nil, &eventstore.StorageError{Op: "append", Err: err}
	}

	var expected int64
	if opts.ExpectedVersion != nil {
		expected = *opts.ExpectedVersion
	}
	if current != expected {
		return nil, &eventstore.ConflictError{
			AggregateID: ev.AggregateID,
			Expected:    expected,
			Actual:      current,
		}
	}

	rec := event.Record{
		TenantID:      ev.TenantID,
		AggregateType: aggregateType,
		AggregateID:   ev.AggregateID,
		Version:       current + 1,
		Name:          ev.Name,
		SchemaVersion: schemaVersion,
		Payload:       payloadJSON,
		Metadata:      metadataJSON,
		OccurredAt:    ev.OccurredAt,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO event_store (tenant_id, aggregate_type, aggregate_id, version, event_name, schema_version, payload, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, recorded_at, global_seq`,
		rec.TenantID.String(), rec.AggregateType, rec.AggregateID, rec.Version,
		string(rec.Name), rec.SchemaVersion, rec.Payload, rec.Metadata, rec.OccurredAt,
	).Scan(&rec.ID, &rec.RecordedAt, &rec.GlobalSeq)
	if err != nil {
		if isUniqueViolation(err) {
			// Another appender won the race between our version read and
			// this insert.
			return nil, &eventstore.ConflictError{
				AggregateID: ev.AggregateID,
				Expected:    expected,
				Actual:      -1,
			}
		}
		return nil, &eventstore.StorageError{Op: "append", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &eventstore.StorageError{Op: "append", Err: err}
	}
	return &rec, nil
}

// LoadStream returns all committed records for the aggregate, ordered by
// ascending version.
func (s *EventStore) LoadStream(ctx context.Context, aggregateID string) ([]event.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM event_store WHERE aggregate_id = $1 ORDER BY version ASC`,
		aggregateID)
	if err != nil {
		return nil, &eventstore.StorageError{Op: "load stream", Err: err}
	}
	defer rows.Close()

	var records []event.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &eventstore.StorageError{Op: "load stream", Err: err}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &eventstore.StorageError{Op: "load stream", Err: err}
	}
	return records, nil
}

// ReadAllSince streams the global feed in keyset-paginated batches ordered
// by (occurred_at, global_seq). The batch is fully read off the connection
// before fn runs, so fn may itself hit the pool.
func (s *EventStore) ReadAllSince(ctx context.Context, from time.Time, fn func(event.Record) error) error {
	var (
		lastAt  time.Time
		lastSeq int64
		first   = true
	)
	for {
		batch, err := s.readBatchAfter(ctx, from, lastAt, lastSeq, first)
		if err != nil {
			return &eventstore.StorageError{Op: "read all", Err: err}
		}
		if len(batch) == 0 {
			return nil
		}
		for _, rec := range batch {
			if err := fn(rec); err != nil {
				return err
			}
		}
		last := batch[len(batch)-1]
		lastAt, lastSeq, first = last.OccurredAt, last.GlobalSeq, false
		if len(batch) < s.readBatch {
			return nil
		}
	}
}

func (s *EventStore) readBatchAfter(ctx context.Context, from, lastAt time.Time, lastSeq int64, first bool) ([]event.Record, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if first {
		rows, err = s.pool.Query(ctx,
			`SELECT `+recordColumns+` FROM event_store
			 WHERE occurred_at >= $1
			 ORDER BY occurred_at, global_seq
			 LIMIT $2`, from, s.readBatch)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+recordColumns+` FROM event_store
			 WHERE (occurred_at, global_seq) > ($1, $2)
			 ORDER BY occurred_at, global_seq
			 LIMIT $3`, lastAt, lastSeq, s.readBatch)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batch := make([]event.Record, 0, s.readBatch)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, rec)
	}
	return batch, rows.Err()
}

// mergeMetadata layers the append-time metadata over the event's own and
// always stamps the tenant, so every durable record carries its tenant
// even when read outside a request context.
func mergeMetadata(ev event.DomainEvent, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(ev.Metadata)+len(extra)+1)
	for k, v := range ev.Metadata {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	merged[event.MetaTenantID] = ev.TenantID.String()
	return merged
}

func scanRecord(row scannable) (event.Record, error) {
	var rec event.Record
	var rawTenant, rawName string
	err := row.Scan(&rec.ID, &rawTenant, &rec.AggregateType, &rec.AggregateID, &rec.Version,
		&rawName, &rec.SchemaVersion, &rec.Payload, &rec.Metadata, &rec.OccurredAt, &rec.RecordedAt, &rec.GlobalSeq)
	if err != nil {
		return rec, err
	}
	rec.Name = event.Name(rawName)
	if rec.TenantID, err = tenant.ParseID(rawTenant); err != nil {
		return rec, fmt.Errorf("record %s tenant id %q: %w", rec.ID, rawTenant, err)
	}
	return rec, nil
}
