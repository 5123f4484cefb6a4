package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/middleware"
	"github.com/vendora/vendora/internal/port/eventstore"
	"github.com/vendora/vendora/internal/port/messagequeue"
)

var (
	tenantA = tenant.MustID("11111111-1111-4111-8111-111111111111")
	tenantB = tenant.MustID("22222222-2222-4222-8222-222222222222")
)

// ctxWithTenant returns a context carrying a bound tenant context, the way
// the HTTP middleware or the worker would set it up.
func ctxWithTenant(t *testing.T, tid tenant.ID) context.Context {
	t.Helper()
	tc, err := tenant.BoundContext(tid)
	if err != nil {
		t.Fatalf("bound context: %v", err)
	}
	return middleware.WithTenantContext(context.Background(), tc)
}

// memStore is an in-memory eventstore.Store with the same concurrency
// contract as the real one. forcedConflicts makes the next N appends fail
// with a conflict to exercise retry paths.
type memStore struct {
	mu              sync.Mutex
	records         []event.Record
	seq             int64
	forcedConflicts int
}

func (m *memStore) Append(_ context.Context, ev event.DomainEvent, aggregateType string, opts eventstore.AppendOptions) (*event.Record, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.forcedConflicts > 0 {
		m.forcedConflicts--
		return nil, &eventstore.ConflictError{AggregateID: ev.AggregateID, Actual: -1}
	}

	var current int64
	for _, r := range m.records {
		if r.AggregateID == ev.AggregateID && r.Version > current {
			current = r.Version
		}
	}
	var expected int64
	if opts.ExpectedVersion != nil {
		expected = *opts.ExpectedVersion
	}
	if current != expected {
		return nil, &eventstore.ConflictError{AggregateID: ev.AggregateID, Expected: expected, Actual: current}
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{event.MetaTenantID: ev.TenantID.String()}
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	m.seq++
	rec := event.Record{
		ID:            uuid.NewString(),
		TenantID:      ev.TenantID,
		AggregateType: aggregateType,
		AggregateID:   ev.AggregateID,
		Version:       current + 1,
		Name:          ev.Name,
		SchemaVersion: 1,
		Payload:       payload,
		Metadata:      metaJSON,
		OccurredAt:    ev.OccurredAt,
		RecordedAt:    time.Now().UTC(),
		GlobalSeq:     m.seq,
	}
	m.records = append(m.records, rec)
	return &rec, nil
}

func (m *memStore) LoadStream(_ context.Context, aggregateID string) ([]event.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stream []event.Record
	for _, r := range m.records {
		if r.AggregateID == aggregateID {
			stream = append(stream, r)
		}
	}
	sort.Slice(stream, func(i, j int) bool { return stream[i].Version < stream[j].Version })
	return stream, nil
}

func (m *memStore) ReadAllSince(_ context.Context, from time.Time, fn func(event.Record) error) error {
	m.mu.Lock()
	all := make([]event.Record, len(m.records))
	copy(all, m.records)
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].OccurredAt.Equal(all[j].OccurredAt) {
			return all[i].OccurredAt.Before(all[j].OccurredAt)
		}
		return all[i].GlobalSeq < all[j].GlobalSeq
	})
	for _, r := range all {
		if r.OccurredAt.Before(from) {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// memCheckpoints is an in-memory eventstore.CheckpointStore.
type memCheckpoints struct {
	mu    sync.Mutex
	saved map[string]eventstore.Checkpoint
	saves int
}

func (m *memCheckpoints) LoadCheckpoint(_ context.Context, name string) (eventstore.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[name], nil
}

func (m *memCheckpoints) SaveCheckpoint(_ context.Context, name string, cp eventstore.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[string]eventstore.Checkpoint)
	}
	m.saved[name] = cp
	m.saves++
	return nil
}

// published is one captured queue publish.
type published struct {
	subject string
	data    []byte
}

// fakeQueue captures publishes and hands subscriptions back to the test.
type fakeQueue struct {
	mu        sync.Mutex
	published []published
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, published{subject: subject, data: data})
	return nil
}

func (q *fakeQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

// fakeProjector records what it projected. A non-nil failOn makes it fail
// on that event name; supports nil means "supports everything".
type fakeProjector struct {
	name     string
	supports map[event.Name]bool
	failOn   event.Name
	failErr  error

	mu      sync.Mutex
	applied []string
}

func (p *fakeProjector) Name() string { return p.name }

func (p *fakeProjector) Supports(name event.Name) bool {
	if p.supports == nil {
		return true
	}
	return p.supports[name]
}

func (p *fakeProjector) Project(_ context.Context, rec event.Record) error {
	if p.failOn != "" && rec.Name == p.failOn {
		return p.failErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied = append(p.applied, rec.ID)
	return nil
}

func (p *fakeProjector) appliedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.applied)
}
