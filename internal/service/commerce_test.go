package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vendora/vendora/internal/domain"
	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/port/messagequeue"
)

func newTestCommerce(store *memStore, queue *fakeQueue) *CommerceService {
	return NewCommerceService(store, queue, NewDispatcher(3, nil), nil)
}

func TestPlaceOrderAppendsAndPublishes(t *testing.T) {
	store := &memStore{}
	queue := &fakeQueue{}
	svc := newTestCommerce(store, queue)
	ctx := ctxWithTenant(t, tenantA)

	rec, err := svc.PlaceOrder(ctx, PlaceOrderRequest{ItemsCount: 2, Currency: "EUR", TotalMinor: 4500})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("expected version 1, got %d", rec.Version)
	}
	if rec.TenantID != tenantA {
		t.Fatalf("record tenant %s, want %s", rec.TenantID, tenantA)
	}

	if len(queue.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(queue.published))
	}
	p := queue.published[0]
	if p.subject != messagequeue.EventSubject(string(event.OrderCreated)) {
		t.Fatalf("published to %s", p.subject)
	}
	_, stamp, err := messagequeue.Open(p.data)
	if err != nil {
		t.Fatalf("published message must carry a valid stamp: %v", err)
	}
	if stamp != tenantA {
		t.Fatalf("stamp %s, want %s", stamp, tenantA)
	}
}

func TestPlaceOrderRequiresTenant(t *testing.T) {
	svc := newTestCommerce(&memStore{}, &fakeQueue{})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{ItemsCount: 1, Currency: "EUR", TotalMinor: 100})
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestPlaceOrderValidatesInput(t *testing.T) {
	svc := newTestCommerce(&memStore{}, &fakeQueue{})
	ctx := ctxWithTenant(t, tenantA)

	if _, err := svc.PlaceOrder(ctx, PlaceOrderRequest{Currency: "EUR"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestChangeProductPriceRetriesThroughConflict(t *testing.T) {
	store := &memStore{forcedConflicts: 2}
	svc := newTestCommerce(store, &fakeQueue{})
	ctx := ctxWithTenant(t, tenantA)

	rec, err := svc.ChangeProductPrice(ctx, "product-42", 1999)
	if err != nil {
		t.Fatalf("change price: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("expected version 1, got %d", rec.Version)
	}
}

func TestChangeProductPriceUsesLastPrice(t *testing.T) {
	store := &memStore{}
	svc := newTestCommerce(store, &fakeQueue{})
	ctx := ctxWithTenant(t, tenantA)

	if _, err := svc.ChangeProductPrice(ctx, "product-7", 1000); err != nil {
		t.Fatalf("first change: %v", err)
	}
	rec, err := svc.ChangeProductPrice(ctx, "product-7", 1200)
	if err != nil {
		t.Fatalf("second change: %v", err)
	}
	payload, err := rec.DecodePayload()
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["old_price"] != float64(1000) {
		t.Fatalf("old_price = %v, want 1000", payload["old_price"])
	}
	if rec.Version != 2 {
		t.Fatalf("expected version 2, got %d", rec.Version)
	}
}

func TestRequestReturnNeedsExistingOrder(t *testing.T) {
	store := &memStore{}
	svc := newTestCommerce(store, &fakeQueue{})
	ctx := ctxWithTenant(t, tenantA)

	if _, err := svc.RequestReturn(ctx, "order-missing", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown order, got %v", err)
	}

	order, err := svc.PlaceOrder(ctx, PlaceOrderRequest{ItemsCount: 1, Currency: "EUR", TotalMinor: 100})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	ret, err := svc.RequestReturn(ctx, order.AggregateID, 1)
	if err != nil {
		t.Fatalf("request return: %v", err)
	}
	payload, err := ret.DecodePayload()
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["order_id"] != order.AggregateID {
		t.Fatalf("return references order %v", payload["order_id"])
	}
}

func TestAggregateEventsHidesOtherTenants(t *testing.T) {
	store := &memStore{}
	svc := newTestCommerce(store, &fakeQueue{})

	order, err := svc.PlaceOrder(ctxWithTenant(t, tenantA), PlaceOrderRequest{ItemsCount: 1, Currency: "EUR", TotalMinor: 100})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	// The owning tenant sees the stream.
	stream, err := svc.AggregateEvents(ctxWithTenant(t, tenantA), order.AggregateID)
	if err != nil {
		t.Fatalf("own stream: %v", err)
	}
	if len(stream) != 1 {
		t.Fatalf("expected 1 record, got %d", len(stream))
	}

	// Another tenant gets not-found, not an empty stream or a leak.
	if _, err := svc.AggregateEvents(ctxWithTenant(t, tenantB), order.AggregateID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
}

func TestRegisterCustomerAndReserveInventory(t *testing.T) {
	store := &memStore{}
	queue := &fakeQueue{}
	svc := newTestCommerce(store, queue)
	ctx := ctxWithTenant(t, tenantA)

	if _, err := svc.RegisterCustomer(ctx, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty email, got %v", err)
	}
	cust, err := svc.RegisterCustomer(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("register customer: %v", err)
	}
	if cust.Name != event.CustomerRegistered {
		t.Fatalf("event name %s", cust.Name)
	}

	if _, err := svc.ReserveInventory(ctx, "product-1", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero quantity, got %v", err)
	}
	res, err := svc.ReserveInventory(ctx, "product-1", 5)
	if err != nil {
		t.Fatalf("reserve inventory: %v", err)
	}
	if res.AggregateType != event.AggregateInventory {
		t.Fatalf("aggregate type %s", res.AggregateType)
	}

	if len(queue.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(queue.published))
	}
}
