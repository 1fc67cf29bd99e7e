// Package api exposes the storefront HTTP surface: catalog reads, discount
// evaluation, checkout, payment webhooks, and the admin slice. Handlers
// decode requests, delegate to the domain services, and map domain errors
// onto response envelopes.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/catalog"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/discount"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
	"github.com/lv7dev/shop-v2-sub000/internal/payment"
)

// Handler serves the storefront API, delegating business logic to the
// injected domain services.
type Handler struct {
	catalog   catalog.Reader
	discounts *discount.Service
	promos    discount.Repository
	orders    *order.Service
	orderRepo order.Repository
	providers *payment.Registry
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cat catalog.Reader,
	discounts *discount.Service,
	promos discount.Repository,
	orders *order.Service,
	orderRepo order.Repository,
	providers *payment.Registry,
) *Handler {
	return &Handler{
		catalog:   cat,
		discounts: discounts,
		promos:    promos,
		orders:    orders,
		orderRepo: orderRepo,
		providers: providers,
	}
}

// Routes mounts every API endpoint on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)

	r.Post("/discounts/apply", h.ApplyDiscount)
	r.Post("/discounts/auto", h.AutoApplyDiscounts)

	r.Post("/orders", h.CreateOrder)
	r.Get("/orders", h.ListOrders)
	r.Get("/orders/{id}", h.GetOrder)
	r.Post("/orders/{id}/cancel", h.CancelOrder)

	r.Post("/webhooks/payment", h.PaymentWebhook)
	r.Post("/internal/expire-payments", h.ExpirePayments)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/discounts", h.CreateDiscount)
		r.Get("/orders", h.ListAllOrders)
		r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
	})

	return r
}

// userID identifies the calling customer. Session handling lives upstream;
// the gateway forwards the authenticated identity in a header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}
