package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/discount"
)

type cartLineRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

type appliedResponse struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Type        string          `json:"type"`
	Scope       string          `json:"scope"`
	Stackable   bool            `json:"stackable"`
	Value       decimal.Decimal `json:"value"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

type applyDiscountRequest struct {
	Code               string            `json:"code"`
	Items              []cartLineRequest `json:"items"`
	AppliedDiscountIDs []string          `json:"appliedDiscountIds"`
}

// ApplyDiscount validates a manually entered discount code against the cart
// and the already-applied set.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyDiscountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.discounts.ApplyCode(r.Context(), discount.ApplyCodeRequest{
		Code:        req.Code,
		Lines:       toCartLines(req.Items),
		ExistingIDs: req.AppliedDiscountIDs,
		CustomerID:  userID(r),
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"discount":   toAppliedResponse(result.Applied),
		"replaceAll": result.ReplaceAll,
	})
}

type autoApplyRequest struct {
	Items []cartLineRequest `json:"items"`
}

// AutoApplyDiscounts surfaces the automatic discounts the cart currently
// qualifies for.
func (h *Handler) AutoApplyDiscounts(w http.ResponseWriter, r *http.Request) {
	var req autoApplyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	applied, err := h.discounts.AutoApply(r.Context(), toCartLines(req.Items))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	resp := make([]appliedResponse, len(applied))
	for i, a := range applied {
		resp[i] = toAppliedResponse(a)
	}
	respond(w, http.StatusOK, map[string]any{"discounts": resp})
}

func toCartLines(items []cartLineRequest) []discount.CartLine {
	lines := make([]discount.CartLine, len(items))
	for i, it := range items {
		lines[i] = discount.CartLine{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		}
	}
	return lines
}

func toAppliedResponse(a discount.Applied) appliedResponse {
	return appliedResponse{
		ID:          a.DiscountID,
		Code:        a.Code,
		Type:        string(a.Type),
		Scope:       string(a.Scope),
		Stackable:   a.Stackable,
		Value:       a.Value,
		Amount:      a.Amount,
		Description: a.Description,
	}
}
