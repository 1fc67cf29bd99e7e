package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/catalog"
)

type productResponse struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Price    decimal.Decimal   `json:"price"`
	Stock    int               `json:"stock"`
	Variants []variantResponse `json:"variants,omitempty"`
}

type variantResponse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// ListProducts returns the active catalog with variants.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.catalog.List(ctx)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	ids := make([]string, len(products))
	for i := range products {
		ids[i] = products[i].ID
	}
	variants, err := h.catalog.VariantsByProductIDs(ctx, ids)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	byProduct := make(map[string][]variantResponse)
	for i := range variants {
		v := &variants[i]
		byProduct[v.ProductID] = append(byProduct[v.ProductID], variantResponse{
			ID:    v.ID,
			Name:  v.Name,
			Price: variantPrice(v, products),
			Stock: v.Stock,
		})
	}

	resp := make([]productResponse, len(products))
	for i, p := range products {
		resp[i] = productResponse{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Price:    p.Price,
			Stock:    p.Stock,
			Variants: byProduct[p.ID],
		}
	}

	respond(w, http.StatusOK, map[string]any{"products": resp})
}

func variantPrice(v *catalog.Variant, products []catalog.Product) decimal.Decimal {
	for i := range products {
		if products[i].ID == v.ProductID {
			return v.UnitPrice(&products[i])
		}
	}
	return decimal.Zero
}
