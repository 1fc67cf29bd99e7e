package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/discount"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
)

type createDiscountRequest struct {
	Code        string           `json:"code"`
	Type        string           `json:"type"`
	Scope       string           `json:"scope,omitempty"`
	Method      string           `json:"method,omitempty"`
	Stackable   bool             `json:"stackable"`
	Value       decimal.Decimal  `json:"value"`
	MinOrder    *decimal.Decimal `json:"minOrder,omitempty"`
	MaxUses     *int             `json:"maxUses,omitempty"`
	StartsAt    *time.Time       `json:"startsAt,omitempty"`
	ExpiresAt   *time.Time       `json:"expiresAt,omitempty"`
	ProductIDs  []string         `json:"productIds,omitempty"`
	Description string           `json:"description,omitempty"`
}

// CreateDiscount registers a new discount. Codes are stored upper-cased;
// defaults are ORDER scope and CODE method.
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req createDiscountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		respondError(w, http.StatusBadRequest, "code required")
		return
	}
	typ := discount.Type(req.Type)
	if typ != discount.TypePercentage && typ != discount.TypeFixed {
		respondError(w, http.StatusBadRequest, "type must be PERCENTAGE or FIXED")
		return
	}
	if !req.Value.IsPositive() {
		respondError(w, http.StatusBadRequest, "value must be positive")
		return
	}
	if typ == discount.TypePercentage && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		respondError(w, http.StatusBadRequest, "percentage value must not exceed 100")
		return
	}

	scope := discount.Scope(req.Scope)
	if scope == "" {
		scope = discount.ScopeOrder
	}
	if scope == discount.ScopeProduct && len(req.ProductIDs) == 0 {
		respondError(w, http.StatusBadRequest, "productIds required for PRODUCT scope")
		return
	}
	method := discount.Method(req.Method)
	if method == "" {
		method = discount.MethodCode
	}

	d := &discount.Discount{
		ID:          uuid.New().String(),
		Code:        code,
		Type:        typ,
		Scope:       scope,
		Method:      method,
		Stackable:   req.Stackable,
		Value:       req.Value,
		MinOrder:    req.MinOrder,
		MaxUses:     req.MaxUses,
		Active:      true,
		StartsAt:    req.StartsAt,
		ExpiresAt:   req.ExpiresAt,
		ProductIDs:  req.ProductIDs,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}
	if err := h.promos.Create(r.Context(), d); err != nil {
		respondDomainError(w, r, err)
		return
	}

	respond(w, http.StatusCreated, map[string]any{"id": d.ID, "code": d.Code})
}

const (
	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
)

// ListAllOrders is the admin order listing across all customers, newest
// first, paged with limit/offset query parameters.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultOrderPageSize)
	if limit < 1 || limit > maxOrderPageSize {
		limit = defaultOrderPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	orders, err := h.orderRepo.List(r.Context(), limit, offset)
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

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus is the admin fulfillment transition.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateOrderStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.Status(req.Status))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respond(w, http.StatusOK, nil)
}
