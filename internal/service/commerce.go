package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vendora/vendora/internal/adapter/otel"
	"github.com/vendora/vendora/internal/domain"
	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/logger"
	"github.com/vendora/vendora/internal/middleware"
	"github.com/vendora/vendora/internal/port/eventstore"
	"github.com/vendora/vendora/internal/port/messagequeue"
	"github.com/vendora/vendora/internal/resilience"
)

// CommerceService handles the commerce commands: each one appends exactly
// one event to the log and then publishes it for live projection. The
// tenant always comes from the request's resolved TenantContext; commands
// without one are refused.
type CommerceService struct {
	events   eventstore.Store
	queue    messagequeue.Queue
	dispatch *Dispatcher
	metrics  *otel.Metrics
	breaker  *resilience.Breaker
}

// NewCommerceService creates a CommerceService. queue and metrics may be
// nil; without a queue events are appended but not published.
func NewCommerceService(events eventstore.Store, queue messagequeue.Queue, dispatch *Dispatcher, metrics *otel.Metrics) *CommerceService {
	return &CommerceService{
		events:   events,
		queue:    queue,
		dispatch: dispatch,
		metrics:  metrics,
		breaker:  resilience.NewBreaker(5, 30*time.Second),
	}
}

// PlaceOrderRequest holds the inputs for placing an order. Amounts are
// integer minor units.
type PlaceOrderRequest struct {
	ItemsCount int    `json:"items_count"`
	Currency   string `json:"currency"`
	TotalMinor int64  `json:"total_minor"`
}

// PlaceOrder records a new order and returns the durable record.
func (s *CommerceService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*event.Record, error) {
	tid, err := middleware.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if req.ItemsCount < 1 {
		return nil, fmt.Errorf("place order: %w: items_count must be >= 1", domain.ErrValidation)
	}
	orderID := "order-" + uuid.NewString()

	var rec *event.Record
	err = s.dispatch.Dispatch(ctx, "place_order", func(ctx context.Context) error {
		ev := event.NewOrderCreated(tid, orderID, req.ItemsCount, req.Currency, req.TotalMinor, time.Now().UTC())
		rec, err = s.append(ctx, ev, event.AggregateOrder, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// ChangeProductPrice records a price move for a product. Each attempt
// re-reads the product's stream, so a conflict retry sees the version the
// competing writer produced.
func (s *CommerceService) ChangeProductPrice(ctx context.Context, productID string, newPrice int64) (*event.Record, error) {
	tid, err := middleware.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	var rec *event.Record
	err = s.dispatch.Dispatch(ctx, "change_product_price", func(ctx context.Context) error {
		// An empty stream is a product that never had a price recorded,
		// which is fine; a stream owned by another tenant is not.
		stream, err := s.events.LoadStream(ctx, productID)
		if err != nil {
			return err
		}
		if len(stream) > 0 && stream[0].TenantID != tid {
			return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		oldPrice := lastKnownPrice(stream)
		ev := event.NewProductPriceChanged(tid, productID, oldPrice, newPrice, time.Now().UTC())
		rec, err = s.append(ctx, ev, event.AggregateProduct, expectedVersion(stream))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// RegisterCustomer records a customer signup.
func (s *CommerceService) RegisterCustomer(ctx context.Context, email string) (*event.Record, error) {
	tid, err := middleware.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if email == "" {
		return nil, fmt.Errorf("register customer: %w: email required", domain.ErrValidation)
	}
	customerID := "customer-" + uuid.NewString()

	var rec *event.Record
	err = s.dispatch.Dispatch(ctx, "register_customer", func(ctx context.Context) error {
		ev := event.NewCustomerRegistered(tid, customerID, email, time.Now().UTC())
		rec, err = s.append(ctx, ev, event.AggregateCustomer, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// ReserveInventory records a stock hold.
func (s *CommerceService) ReserveInventory(ctx context.Context, productID string, quantity int) (*event.Record, error) {
	tid, err := middleware.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, fmt.Errorf("reserve inventory: %w: quantity must be >= 1", domain.ErrValidation)
	}
	reservationID := "reservation-" + uuid.NewString()

	var rec *event.Record
	err = s.dispatch.Dispatch(ctx, "reserve_inventory", func(ctx context.Context) error {
		ev := event.NewInventoryReserved(tid, reservationID, productID, quantity, time.Now().UTC())
		rec, err = s.append(ctx, ev, event.AggregateInventory, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// RequestReturn records a return request against an existing order.
func (s *CommerceService) RequestReturn(ctx context.Context, orderID string, itemsCount int) (*event.Record, error) {
	tid, err := middleware.TenantID(ctx)
	if err != nil {
		return nil, err
	}

	// The order must exist and belong to this tenant.
	if _, err := s.loadOwnStream(ctx, tid, orderID); err != nil {
		return nil, err
	}
	returnID := "return-" + uuid.NewString()

	var rec *event.Record
	err = s.dispatch.Dispatch(ctx, "request_return", func(ctx context.Context) error {
		ev := event.NewReturnRequested(tid, returnID, orderID, itemsCount, time.Now().UTC())
		rec, err = s.append(ctx, ev, event.AggregateReturn, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// AggregateEvents returns the committed stream for an aggregate owned by
// the request's tenant. Streams of other tenants read as not found.
func (s *CommerceService) AggregateEvents(ctx context.Context, aggregateID string) ([]event.Record, error) {
	tid, err := middleware.TenantID(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadOwnStream(ctx, tid, aggregateID)
}

// loadOwnStream loads an aggregate stream and hides streams belonging to
// other tenants behind ErrNotFound.
func (s *CommerceService) loadOwnStream(ctx context.Context, tid tenant.ID, aggregateID string) ([]event.Record, error) {
	stream, err := s.events.LoadStream(ctx, aggregateID)
	if err != nil {
		return nil, err
	}
	if len(stream) == 0 || stream[0].TenantID != tid {
		return nil, fmt.Errorf("aggregate %s: %w", aggregateID, domain.ErrNotFound)
	}
	return stream, nil
}

// append runs one store append with the request's correlation stamp and
// records metrics.
func (s *CommerceService) append(ctx context.Context, ev event.DomainEvent, aggregateType string, expected *int64) (*event.Record, error) {
	ctx, span := otel.StartAppendSpan(ctx, aggregateType, ev.AggregateID, string(ev.Name))
	defer span.End()

	meta := map[string]any{}
	if reqID := logger.RequestID(ctx); reqID != "" {
		meta[event.MetaCorrelationID] = reqID
	}

	start := time.Now()
	rec, err := s.events.Append(ctx, ev, aggregateType, eventstore.AppendOptions{
		ExpectedVersion: expected,
		Metadata:        meta,
	})
	if s.metrics != nil {
		s.metrics.AppendDuration.Record(ctx, time.Since(start).Seconds())
		switch {
		case err == nil:
			s.metrics.EventsAppended.Add(ctx, 1)
		case errors.Is(err, eventstore.ErrConflict):
			s.metrics.AppendConflicts.Add(ctx, 1)
		}
	}
	return rec, err
}

// publish sends the durable record across the async boundary, stamped with
// its tenant. Publish failures do not fail the command: the event is
// already durable and replay can rebuild any projection it missed.
func (s *CommerceService) publish(ctx context.Context, rec *event.Record) {
	if s.queue == nil || rec == nil {
		return
	}
	data, err := messagequeue.Seal(rec.TenantID, logger.RequestID(ctx), rec.ID, rec)
	if err != nil {
		slog.Error("seal event for queue", "event_id", rec.ID, "error", err)
		return
	}
	// The breaker stops hammering a down broker; skipped publishes are
	// recovered by replay like any other publish failure.
	err = s.breaker.Execute(func() error {
		return s.queue.Publish(ctx, messagequeue.EventSubject(string(rec.Name)), data)
	})
	if err != nil {
		slog.Error("publish event", "event_id", rec.ID, "subject", string(rec.Name), "error", err)
	}
}

// expectedVersion derives the append precondition from a loaded stream:
// nil for an empty stream, otherwise the last committed version.
func expectedVersion(stream []event.Record) *int64 {
	if len(stream) == 0 {
		return nil
	}
	v := stream[len(stream)-1].Version
	return &v
}

// lastKnownPrice walks the stream for the most recent recorded price.
func lastKnownPrice(stream []event.Record) int64 {
	for i := len(stream) - 1; i >= 0; i-- {
		if stream[i].Name != event.ProductPriceChanged {
			continue
		}
		payload, err := stream[i].DecodePayload()
		if err != nil {
			return 0
		}
		if p, ok := payload["new_price"].(float64); ok {
			return int64(p)
		}
	}
	return 0
}
