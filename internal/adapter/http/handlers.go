package http

import (
	"context"
	"net/http"

	"github.com/vendora/vendora/internal/adapter/postgres"
	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/middleware"
	"github.com/vendora/vendora/internal/port/messagequeue"
	"github.com/vendora/vendora/internal/service"
)

// TimelineReader reads the per-order timeline projection.
type TimelineReader interface {
	Timeline(ctx context.Context, tid tenant.ID, orderID string) ([]postgres.TimelineEntry, error)
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Commerce *service.CommerceService
	Timeline TimelineReader
	DB       Pinger
	Queue    messagequeue.Queue
}

// Health handles GET /healthz. It is mounted outside the tenant
// middleware so probes need no tenant.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]string{"status": "ok", "postgres": "up", "nats": "up"}

	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["postgres"] = "down"
			status = http.StatusServiceUnavailable
		}
	}
	if h.Queue != nil && !h.Queue.IsConnected() {
		resp["status"] = "degraded"
		resp["nats"] = "down"
	}
	writeJSON(w, status, resp)
}

// PlaceOrder handles POST /api/v1/orders
func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.PlaceOrderRequest](w, r)
	if !ok {
		return
	}
	rec, err := h.Commerce.PlaceOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ChangeProductPrice handles POST /api/v1/products/{id}/price
func (h *Handlers) ChangeProductPrice(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		NewPrice int64 `json:"new_price"`
	}](w, r)
	if !ok {
		return
	}
	rec, err := h.Commerce.ChangeProductPrice(r.Context(), urlParam(r, "id"), req.NewPrice)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// RegisterCustomer handles POST /api/v1/customers
func (h *Handlers) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Email string `json:"email"`
	}](w, r)
	if !ok {
		return
	}
	rec, err := h.Commerce.RegisterCustomer(r.Context(), req.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ReserveInventory handles POST /api/v1/inventory/reservations
func (h *Handlers) ReserveInventory(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}](w, r)
	if !ok {
		return
	}
	rec, err := h.Commerce.ReserveInventory(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// RequestReturn handles POST /api/v1/orders/{id}/returns
func (h *Handlers) RequestReturn(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		ItemsCount int `json:"items_count"`
	}](w, r)
	if !ok {
		return
	}
	rec, err := h.Commerce.RequestReturn(r.Context(), urlParam(r, "id"), req.ItemsCount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// AggregateEvents handles GET /api/v1/aggregates/{id}/events
func (h *Handlers) AggregateEvents(w http.ResponseWriter, r *http.Request) {
	stream, err := h.Commerce.AggregateEvents(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stream)
}

// OrderTimeline handles GET /api/v1/orders/{id}/timeline
func (h *Handlers) OrderTimeline(w http.ResponseWriter, r *http.Request) {
	tid, err := middleware.TenantID(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := h.Timeline.Timeline(r.Context(), tid, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []postgres.TimelineEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
