package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendora/vendora/internal/domain/event"
	"github.com/vendora/vendora/internal/domain/tenant"
)

// OrderTimelineProjector maintains the order_event_timeline read model: a
// flat, human-readable history of what happened to each order. Writes are
// keyed by event ID, so projecting the same record twice is a no-op and
// replays can safely re-cover ground.
type OrderTimelineProjector struct {
	pool *pgxpool.Pool
}

// NewOrderTimelineProjector creates the projector backed by the given pool.
func NewOrderTimelineProjector(pool *pgxpool.Pool) *OrderTimelineProjector {
	return &OrderTimelineProjector{pool: pool}
}

func (p *OrderTimelineProjector) Name() string { return "order_timeline" }

func (p *OrderTimelineProjector) Supports(name event.Name) bool {
	switch name {
	case event.OrderCreated, event.ReturnRequested:
		return true
	default:
		return false
	}
}

func (p *OrderTimelineProjector) Project(ctx context.Context, rec event.Record) error {
	payload, err := rec.DecodePayload()
	if err != nil {
		return err
	}

	orderID := rec.AggregateID
	var summary string
	switch rec.Name {
	case event.OrderCreated:
		summary = fmt.Sprintf("order placed: %v item(s), %v %v minor units",
			payload["items_count"], payload["total_minor"], payload["currency"])
	case event.ReturnRequested:
		// Return events aggregate on the return, not the order.
		if oid, ok := payload["order_id"].(string); ok {
			orderID = oid
		}
		summary = fmt.Sprintf("return %s requested: %v item(s)", rec.AggregateID, payload["items_count"])
	default:
		return nil
	}

	return p.insert(ctx, rec, orderID, summary)
}

func (p *OrderTimelineProjector) insert(ctx context.Context, rec event.Record, orderID, summary string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO order_event_timeline (event_id, tenant_id, order_id, version, event_name, summary, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (event_id) DO NOTHING`,
		rec.ID, rec.TenantID.String(), orderID, rec.Version, string(rec.Name), summary, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("project %s into order timeline: %w", rec.ID, err)
	}
	return nil
}

// TimelineEntry is one row of the order timeline read model.
type TimelineEntry struct {
	EventID    string    `json:"event_id"`
	OrderID    string    `json:"order_id"`
	Version    int64     `json:"version"`
	EventName  string    `json:"event_name"`
	Summary    string    `json:"summary"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Timeline returns the projected history for one order, oldest first.
func (p *OrderTimelineProjector) Timeline(ctx context.Context, tid tenant.ID, orderID string) ([]TimelineEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT event_id, order_id, version, event_name, summary, occurred_at
		 FROM order_event_timeline
		 WHERE tenant_id = $1 AND order_id = $2
		 ORDER BY occurred_at, version`,
		tid.String(), orderID)
	if err != nil {
		return nil, fmt.Errorf("load order timeline: %w", err)
	}
	defer rows.Close()

	var entries []TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.EventID, &e.OrderID, &e.Version, &e.EventName, &e.Summary, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
