package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
)

type createOrderRequest struct {
	Items         []cartLineRequest `json:"items"`
	AddressID     string            `json:"addressId,omitempty"`
	Note          string            `json:"note,omitempty"`
	DiscountCodes string            `json:"discountCodes,omitempty"`
	PaymentMethod string            `json:"paymentMethod"`
}

type orderItemResponse struct {
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type orderResponse struct {
	ID             string              `json:"id"`
	Status         string              `json:"status"`
	PaymentStatus  string              `json:"paymentStatus"`
	PaymentMethod  string              `json:"paymentMethod"`
	Currency       string              `json:"currency"`
	Subtotal       decimal.Decimal     `json:"subtotal"`
	ShippingCost   decimal.Decimal     `json:"shippingCost"`
	Tax            decimal.Decimal     `json:"tax"`
	DiscountAmount decimal.Decimal     `json:"discountAmount"`
	Total          decimal.Decimal     `json:"total"`
	DiscountCode   string              `json:"discountCode,omitempty"`
	PaymentExpiry  *time.Time          `json:"paymentExpiry,omitempty"`
	Items          []orderItemResponse `json:"items"`
	CreatedAt      time.Time           `json:"createdAt"`
}

type paymentResponse struct {
	ProviderRef  string `json:"providerRef,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
}

// CreateOrder commits a checkout and, for provider-backed payment methods,
// opens the payment session.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	customerID := userID(r)
	if customerID == "" {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		CustomerID:    customerID,
		Lines:         toCartLines(req.Items),
		AddressID:     req.AddressID,
		Note:          req.Note,
		DiscountCodes: req.DiscountCodes,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	payload := map[string]any{"order": toOrderResponse(o)}

	// The order is committed at this point. A payment session failure is
	// reported but does not undo the order; the expiry sweep reclaims it if
	// the customer never pays.
	if p := h.providers.ForOrder(o); p != nil {
		intent, err := p.CreatePayment(r.Context(), o)
		if err != nil {
			zctx.From(r.Context()).Error("create payment session",
				zap.String("order_id", o.ID), zap.Error(err))
			payload["paymentError"] = "payment session could not be created"
		} else {
			payload["payment"] = paymentResponse{
				ProviderRef:  intent.ProviderRef,
				ClientSecret: intent.ClientSecret,
				RedirectURL:  intent.RedirectURL,
			}
		}
	}

	respond(w, http.StatusCreated, payload)
}

// GetOrder returns one of the caller's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderRepo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if o.CustomerID != userID(r) {
		respondDomainError(w, r, order.ErrNotFound)
		return
	}
	respond(w, http.StatusOK, map[string]any{"order": toOrderResponse(o)})
}

// ListOrders returns the caller's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID := userID(r)
	if customerID == "" {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.orderRepo.ListByCustomer(r.Context(), customerID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	respond(w, http.StatusOK, map[string]any{"orders": resp})
}

// CancelOrder cancels one of the caller's orders while it is still
// cancellable, restoring stock.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respond(w, http.StatusOK, nil)
}

// ExpirePayments runs one expiry sweep pass. Exposed for external
// schedulers; the server also runs it on an internal ticker.
func (h *Handler) ExpirePayments(w http.ResponseWriter, r *http.Request) {
	n, err := h.orders.ExpirePendingPayments(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"expired": n})
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
		}
	}
	return orderResponse{
		ID:             o.ID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		PaymentMethod:  string(o.PaymentMethod),
		Currency:       o.Currency,
		Subtotal:       o.Subtotal,
		ShippingCost:   o.ShippingCost,
		Tax:            o.Tax,
		DiscountAmount: o.DiscountAmount,
		Total:          o.Total,
		DiscountCode:   o.DiscountCode,
		PaymentExpiry:  o.PaymentExpiry,
		Items:          items,
		CreatedAt:      o.CreatedAt,
	}
}
