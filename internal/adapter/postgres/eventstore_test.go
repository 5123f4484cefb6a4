package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendora/vendora/internal/adapter/postgres"
	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/port/eventstore"
)

// setupPool connects to the database from DATABASE_URL, runs all
// migrations, and returns a ready pool. Tests are skipped when no
// database is available.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// createTestTenant inserts a fresh tenant with a unique slug and returns
// its ID.
func createTestTenant(t *testing.T, pool *pgxpool.Pool) tenant.ID {
	t.Helper()
	store := postgres.NewStore(pool)
	slug := "t" + uuid.NewString()[:8]
	created, err := store.CreateTenant(context.Background(), tenant.CreateRequest{
		Name: "Test Tenant " + slug,
		Slug: slug,
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return created.ID
}

func ptr(v int64) *int64 { return &v }

func TestAppendAssignsSequentialVersions(t *testing.T) {
	pool := setupPool(t)
	tid := createTestTenant(t, pool)
	es := postgres.NewEventStore(pool, event.DefaultRegistry(), 0)
	ctx := context.Background()

	orderID := "order-" + uuid.NewString()
	now := time.Now().UTC()

	for i := range 3 {
		var opts eventstore.AppendOptions
		if i > 0 {
			opts.ExpectedVersion = ptr(int64(i))
		}
		ev := event.NewOrderCreated(tid, orderID, i+1, "EUR", 1000, now.Add(time.Duration(i)*time.Second))
		rec, err := es.Append(ctx, ev, event.AggregateOrder, opts)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if rec.Version != int64(i+1) {
			t.Fatalf("append %d: expected version %d, got %d", i, i+1, rec.Version)
		}
	}

	stream, err := es.LoadStream(ctx, orderID)
	if err != nil {
		t.Fatalf("load stream: %v", err)
	}
	if len(stream) != 3 {
		t.Fatalf("expected 3 records, got %d", len(stream))
	}
	for i, rec := range stream {
		if rec.Version != int64(i+1) {
			t.Fatalf("stream[%d]: expected version %d, got %d", i, i+1, rec.Version)
		}
		if rec.TenantID != tid {
			t.Fatalf("stream[%d]: tenant %s, want %s", i, rec.TenantID, tid)
		}
	}
}

func TestAppendStaleVersionConflicts(t *testing.T) {
	pool := setupPool(t)
	tid := createTestTenant(t, pool)
	es := postgres.NewEventStore(pool, event.DefaultRegistry(), 0)
	ctx := context.Background()

	orderID := "order-" + uuid.NewString()
	ev := event.NewOrderCreated(tid, orderID, 1, "EUR", 500, time.Now().UTC())
	if _, err := es.Append(ctx, ev, event.AggregateOrder, eventstore.AppendOptions{}); err != nil {
		t.Fatalf("first append: %v", err)
	}

	// A second append that still believes the stream is empty must fail.
	_, err := es.Append(ctx, ev, event.AggregateOrder, eventstore.AppendOptions{})
	if !errors.Is(err, eventstore.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var conflict *eventstore.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if conflict.Expected != 0 || conflict.Actual != 1 {
		t.Fatalf("conflict expected=0 actual=1, got expected=%d actual=%d", conflict.Expected, conflict.Actual)
	}

	// The log must be unchanged by the failed append.
	stream, err := es.LoadStream(ctx, orderID)
	if err != nil {
		t.Fatalf("load stream: %v", err)
	}
	if len(stream) != 1 {
		t.Fatalf("expected 1 record after failed append, got %d", len(stream))
	}
}

func TestAppendConcurrentOneWins(t *testing.T) {
	pool := setupPool(t)
	tid := createTestTenant(t, pool)
	es := postgres.NewEventStore(pool, event.DefaultRegistry(), 0)

	orderID := "order-" + uuid.NewString()
	const appenders = 8

	var wg sync.WaitGroup
	errs := make([]error, appenders)
	for i := range appenders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := event.NewOrderCreated(tid, orderID, 1, "EUR", 100, time.Now().UTC())
			_, errs[i] = es.Append(context.Background(), ev, event.AggregateOrder, eventstore.AppendOptions{})
		}()
	}
	wg.Wait()

	var wins, conflicts int
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, eventstore.ErrConflict):
			conflicts++
		default:
			t.Fatalf("appender %d: unexpected error %v", i, err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d (conflicts %d)", wins, conflicts)
	}
	if conflicts != appenders-1 {
		t.Fatalf("expected %d conflicts, got %d", appenders-1, conflicts)
	}
}

func TestAppendPayloadRoundTrip(t *testing.T) {
	pool := setupPool(t)
	tid := createTestTenant(t, pool)
	es := postgres.NewEventStore(pool, event.DefaultRegistry(), 0)
	ctx := context.Background()

	orderID := "order-" + uuid.NewString()
	correlation := uuid.NewString()
	ev := event.NewOrderCreated(tid, orderID, 3, "SEK", 24900, time.Now().UTC())
	rec, err := es.Append(ctx, ev, event.AggregateOrder, eventstore.AppendOptions{
		Metadata: map[string]any{event.MetaCorrelationID: correlation},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	stream, err := es.LoadStream(ctx, orderID)
	if err != nil {
		t.Fatalf("load stream: %v", err)
	}
	payload, err := stream[0].DecodePayload()
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["items_count"] != float64(3) {
		t.Fatalf("items_count: got %v", payload["items_count"])
	}
	if payload["currency"] != "SEK" {
		t.Fatalf("currency: got %v", payload["currency"])
	}
	if payload["total_minor"] != float64(24900) {
		t.Fatalf("total_minor: got %v", payload["total_minor"])
	}

	meta, err := stream[0].DecodeMetadata()
	if err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta[event.MetaTenantID] != tid.String() {
		t.Fatalf("metadata tenant: got %v", meta[event.MetaTenantID])
	}
	if meta[event.MetaCorrelationID] != correlation {
		t.Fatalf("metadata correlation: got %v", meta[event.MetaCorrelationID])
	}
	if rec.SchemaVersion != 1 {
		t.Fatalf("schema version: got %d", rec.SchemaVersion)
	}
}

func TestReadAllSinceDeterministicOrder(t *testing.T) {
	pool := setupPool(t)
	tid := createTestTenant(t, pool)
	// Batch size 2 forces pagination across the three appended events.
	es := postgres.NewEventStore(pool, event.DefaultRegistry(), 2)
	ctx := context.Background()

	// Same occurred_at for all three: only the insertion order can break
	// the tie, and it must do so the same way every read.
	at := time.Now().UTC().Truncate(time.Microsecond)
	mine := make(map[string]bool)
	for i := range 3 {
		orderID := fmt.Sprintf("order-%s-%d", uuid.NewString()[:8], i)
		mine[orderID] = true
		ev := event.NewOrderCreated(tid, orderID, 1, "EUR", 100, at)
		if _, err := es.Append(ctx, ev, event.AggregateOrder, eventstore.AppendOptions{}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	readIDs := func() []string {
		var ids []string
		err := es.ReadAllSince(ctx, at, func(rec event.Record) error {
			if mine[rec.AggregateID] {
				ids = append(ids, rec.AggregateID)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("read all: %v", err)
		}
		return ids
	}

	first := readIDs()
	if len(first) != 3 {
		t.Fatalf("expected 3 records, got %d", len(first))
	}
	second := readIDs()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("order not deterministic: %v vs %v", first, second)
		}
	}
}

func TestReadAllSinceCallbackErrorHalts(t *testing.T) {
	pool := setupPool(t)
	tid := createTestTenant(t, pool)
	es := postgres.NewEventStore(pool, event.DefaultRegistry(), 0)
	ctx := context.Background()

	at := time.Now().UTC()
	ev := event.NewOrderCreated(tid, "order-"+uuid.NewString(), 1, "EUR", 100, at)
	if _, err := es.Append(ctx, ev, event.AggregateOrder, eventstore.AppendOptions{}); err != nil {
		t.Fatalf("append: %v", err)
	}

	boom := errors.New("projection exploded")
	err := es.ReadAllSince(ctx, at, func(event.Record) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error to surface, got %v", err)
	}
}

func TestAppendRejectsUnknownEvent(t *testing.T) {
	pool := setupPool(t)
	tid := createTestTenant(t, pool)
	es := postgres.NewEventStore(pool, event.DefaultRegistry(), 0)

	ev := event.DomainEvent{
		AggregateID: "order-" + uuid.NewString(),
		TenantID:    tid,
		Name:        "order.mystery",
		Payload:     map[string]any{},
		OccurredAt:  time.Now().UTC(),
	}
	_, err := es.Append(context.Background(), ev, event.AggregateOrder, eventstore.AppendOptions{})
	if !errors.Is(err, event.ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	pool := setupPool(t)
	cs := postgres.NewCheckpointStore(pool)
	ctx := context.Background()

	name := "replay-" + uuid.NewString()[:8]
	cp, err := cs.LoadCheckpoint(ctx, name)
	if err != nil {
		t.Fatalf("load missing checkpoint: %v", err)
	}
	if !cp.IsZero() {
		t.Fatalf("expected zero checkpoint, got %+v", cp)
	}

	want := eventstore.Checkpoint{
		OccurredAt: time.Now().UTC().Truncate(time.Microsecond),
		GlobalSeq:  42,
	}
	if err := cs.SaveCheckpoint(ctx, name, want); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	got, err := cs.LoadCheckpoint(ctx, name)
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if !got.OccurredAt.Equal(want.OccurredAt) || got.GlobalSeq != want.GlobalSeq {
		t.Fatalf("checkpoint round trip: got %+v, want %+v", got, want)
	}

	// Saving again must overwrite, not duplicate.
	want.GlobalSeq = 99
	if err := cs.SaveCheckpoint(ctx, name, want); err != nil {
		t.Fatalf("re-save checkpoint: %v", err)
	}
	got, err = cs.LoadCheckpoint(ctx, name)
	if err != nil {
		t.Fatalf("reload checkpoint: %v", err)
	}
	if got.GlobalSeq != 99 {
		t.Fatalf("expected global_seq 99, got %d", got.GlobalSeq)
	}
}

func TestOrderTimelineProjectorIdempotent(t *testing.T) {
	pool := setupPool(t)
	tid := createTestTenant(t, pool)
	es := postgres.NewEventStore(pool, event.DefaultRegistry(), 0)
	proj := postgres.NewOrderTimelineProjector(pool)
	ctx := context.Background()

	orderID := "order-" + uuid.NewString()
	ev := event.NewOrderCreated(tid, orderID, 2, "EUR", 3000, time.Now().UTC())
	rec, err := es.Append(ctx, ev, event.AggregateOrder, eventstore.AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if !proj.Supports(event.OrderCreated) {
		t.Fatal("projector must support order.created")
	}
	if proj.Supports(event.CustomerRegistered) {
		t.Fatal("projector must not support customer.registered")
	}

	for range 2 {
		if err := proj.Project(ctx, *rec); err != nil {
			t.Fatalf("project: %v", err)
		}
	}

	var count int
	err = pool.QueryRow(ctx,
		`SELECT count(*) FROM order_event_timeline WHERE order_id = $1`, orderID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count timeline rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 timeline row after double projection, got %d", count)
	}
}
