// Package handler is the HTTP transport: chi routes, bearer-token
// authentication, and mapping of domain errors to client-facing statuses.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"settlement/internal/domain/coupon"
	"settlement/internal/domain/order"
	"settlement/internal/domain/point"
	"settlement/internal/domain/product"
)

// Handler exposes the settlement core over HTTP, delegating all business
// logic to the injected domain services.
type Handler struct {
	orders   *order.Service
	points   *point.Ledger
	issuer   *coupon.Issuer
	products product.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	points *point.Ledger,
	issuer *coupon.Issuer,
	products product.Repository,
) *Handler {
	return &Handler{
		orders:   orders,
		points:   points,
		issuer:   issuer,
		products: products,
	}
}

// Routes returns the API router. Every route requires an authenticated
// identity supplied by the given verifier.
func (h *Handler) Routes(verifier *TokenVerifier) http.Handler {
	r := chi.NewRouter()
	r.Use(verifier.Middleware)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Post("/{orderID}/complete", h.CompleteOrder)
		r.Get("/{orderID}", h.GetOrder)
	})
	r.Post("/coupons", h.IssueCoupon)
	r.Get("/points", h.GetPointHistory)
	r.Get("/products", h.ListProducts)

	return r
}
