package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendora/vendora/internal/adapter/otel"
	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/middleware"
)

// NewRouter assembles the full middleware chain and API routes. Every
// /api/v1 route runs behind the tenant middleware; only the health probe
// is reachable without a resolved tenant.
func NewRouter(h *Handlers, resolver *tenant.Resolver, corsOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(otel.HTTPMiddleware("vendora"))
	r.Use(Logger)
	r.Use(SecurityHeaders)
	r.Use(CORS(corsOrigin))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant(resolver))

		r.Post("/orders", h.PlaceOrder)
		r.Post("/orders/{id}/returns", h.RequestReturn)
		r.Get("/orders/{id}/timeline", h.OrderTimeline)

		r.Post("/products/{id}/price", h.ChangeProductPrice)
		r.Post("/customers", h.RegisterCustomer)
		r.Post("/inventory/reservations", h.ReserveInventory)

		r.Get("/aggregates/{id}/events", h.AggregateEvents)
	})

	return r
}
