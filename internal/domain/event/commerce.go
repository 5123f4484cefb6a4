package event

import (
	"time"

	"github.com/vendora/vendora/internal/domain/tenant"
)

// Aggregate type tags used by the commerce domain.
const (
	AggregateOrder     = "order"
	AggregateProduct   = "product"
	AggregateCustomer  = "customer"
	AggregateInventory = "inventory"
	AggregateReturn    = "return"
)

// The commerce event catalog.
const (
	OrderCreated        Name = "order.created"
	ProductPriceChanged Name = "product.price_changed"
	CustomerRegistered  Name = "customer.registered"
	InventoryReserved   Name = "inventory.reserved"
	ReturnRequested     Name = "return.requested"
)

// DefaultRegistry returns a Registry pre-loaded with the commerce event
// catalog at its current schema versions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, s := range []Schema{
		{Name: OrderCreated, Version: 1, Required: []string{"items_count", "currency", "total_minor"}},
		{Name: ProductPriceChanged, Version: 1, Required: []string{"old_price", "new_price"}},
		{Name: CustomerRegistered, Version: 1, Required: []string{"email"}},
		{Name: InventoryReserved, Version: 1, Required: []string{"product_id", "quantity"}},
		{Name: ReturnRequested, Version: 1, Required: []string{"order_id", "items_count"}},
	} {
		// Registration of the built-in catalog cannot fail.
		_ = r.Register(s)
	}
	return r
}

// NewOrderCreated builds the event recorded when an order is placed.
// Monetary amounts are integer minor units.
func NewOrderCreated(tid tenant.ID, orderID string, itemsCount int, currency string, totalMinor int64, occurredAt time.Time) DomainEvent {
	return DomainEvent{
		AggregateID: orderID,
		TenantID:    tid,
		Name:        OrderCreated,
		OccurredAt:  occurredAt,
		Payload: map[string]any{
			"items_count": itemsCount,
			"currency":    currency,
			"total_minor": totalMinor,
		},
	}
}

// NewProductPriceChanged builds the event recorded when a product's price
// moves. Prices are integer minor units.
func NewProductPriceChanged(tid tenant.ID, productID string, oldPrice, newPrice int64, occurredAt time.Time) DomainEvent {
	return DomainEvent{
		AggregateID: productID,
		TenantID:    tid,
		Name:        ProductPriceChanged,
		OccurredAt:  occurredAt,
		Payload: map[string]any{
			"old_price": oldPrice,
			"new_price": newPrice,
		},
	}
}

// NewCustomerRegistered builds the event recorded when a customer signs up.
func NewCustomerRegistered(tid tenant.ID, customerID, email string, occurredAt time.Time) DomainEvent {
	return DomainEvent{
		AggregateID: customerID,
		TenantID:    tid,
		Name:        CustomerRegistered,
		OccurredAt:  occurredAt,
		Payload: map[string]any{
			"email": email,
		},
	}
}

// NewInventoryReserved builds the event recorded when stock is held for an
// order.
func NewInventoryReserved(tid tenant.ID, reservationID, productID string, quantity int, occurredAt time.Time) DomainEvent {
	return DomainEvent{
		AggregateID: reservationID,
		TenantID:    tid,
		Name:        InventoryReserved,
		OccurredAt:  occurredAt,
		Payload: map[string]any{
			"product_id": productID,
			"quantity":   quantity,
		},
	}
}

// NewReturnRequested builds the event recorded when a customer opens a
// return.
func NewReturnRequested(tid tenant.ID, returnID, orderID string, itemsCount int, occurredAt time.Time) DomainEvent {
	return DomainEvent{
		AggregateID: returnID,
		TenantID:    tid,
		Name:        ReturnRequested,
		OccurredAt:  occurredAt,
		Payload: map[string]any{
			"order_id":    orderID,
			"items_count": itemsCount,
		},
	}
}
