package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/customer"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/discount"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
)

// respond writes a success envelope. The payload fields are merged next to
// the success flag, so handlers pass a map or a struct with top-level keys.
func respond(w http.ResponseWriter, status int, payload map[string]any) {
	body := make(map[string]any, len(payload)+1)
	body["success"] = true
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// respondError writes a failure envelope with the customer-facing message.
func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

// respondDomainError maps a domain error onto an HTTP status and message.
// Business rejections pass their message through; anything unrecognized is
// logged and masked as an internal error.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if status, ok := domainStatus(err); ok {
		respondError(w, status, err.Error())
		return
	}
	zctx.From(r.Context()).Error("request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}

func domainStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, discount.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, customer.ErrNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, discount.ErrAutoOnly),
		errors.Is(err, discount.ErrMembersOnly),
		errors.Is(err, discount.ErrAlreadyApplied),
		errors.Is(err, discount.ErrNotYetActive),
		errors.Is(err, discount.ErrExpired),
		errors.Is(err, discount.ErrUsageLimit):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidPaymentMethod):
		return http.StatusBadRequest, true
	case errors.Is(err, order.ErrNotCancellable):
		return http.StatusConflict, true
	}

	var (
		minOrderErr *discount.MinOrderError
		stackErr    *discount.StackConflictError
		qtyErr      *order.InvalidQuantityError
		productErr  *order.ProductUnavailableError
		variantErr  *order.VariantUnavailableError
		stockErr    *order.InsufficientStockError
	)
	switch {
	case errors.As(err, &minOrderErr),
		errors.As(err, &stackErr),
		errors.As(err, &qtyErr),
		errors.As(err, &productErr),
		errors.As(err, &variantErr),
		errors.As(err, &stockErr):
		return http.StatusUnprocessableEntity, true
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody decodes a JSON request body into dst, rejecting unknown junk
// with a uniform message.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
