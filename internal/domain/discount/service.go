package discount

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/catalog"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/customer"
)

// ApplyCodeRequest is the input for a single manual code entry.
type ApplyCodeRequest struct {
	Code        string
	Lines       []CartLine
	ExistingIDs []string
	CustomerID  string
}

// CodeResult is the outcome of a successful code application. ReplaceAll
// signals that the new discount is non-stackable and must replace every
// previously applied discount rather than join them.
type CodeResult struct {
	Applied    Applied
	ReplaceAll bool
}

// Service resolves cart prices from the catalog and evaluates discounts
// against them. All computation is side-effect free; usage counters are
// only touched by the order-commit transaction.
type Service struct {
	discounts Repository
	catalog   catalog.Reader
	customers customer.Repository
	now       func() time.Time
}

// NewService creates a discount Service with the required dependencies.
func NewService(discounts Repository, cat catalog.Reader, customers customer.Repository) *Service {
	return &Service{
		discounts: discounts,
		catalog:   cat,
		customers: customers,
		now:       time.Now,
	}
}

// ApplyCode validates a manually entered discount code against the cart
// and any already-applied discounts. The returned amount is advisory; the
// order committer recomputes everything server-side at commit time.
func (s *Service) ApplyCode(ctx context.Context, req ApplyCodeRequest) (*CodeResult, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, ErrNotFound
	}

	d, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup discount")
	}
	if !d.Active {
		return nil, ErrNotFound
	}

	// Method gate: AUTO discounts cannot be entered as codes, and CODE
	// discounts are reserved for accounts older than the discount itself.
	if d.Method == MethodAuto {
		return nil, ErrAutoOnly
	}
	cust, err := s.customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, ErrMembersOnly
		}
		return nil, errors.Wrap(err, "lookup customer")
	}
	if !cust.CreatedAt.Before(d.CreatedAt) {
		return nil, ErrMembersOnly
	}

	if slices.Contains(req.ExistingIDs, d.ID) {
		return nil, ErrAlreadyApplied
	}

	replaceAll, err := s.resolveStacking(ctx, d, req.ExistingIDs)
	if err != nil {
		return nil, err
	}

	lines, err := s.ResolveLines(ctx, req.Lines)
	if err != nil {
		return nil, errors.Wrap(err, "resolve cart")
	}
	subtotal := Subtotal(lines)

	if err := CheckGates(d, subtotal, s.now()); err != nil {
		return nil, err
	}

	// A zero amount (e.g. a PRODUCT-scoped code with no eligible lines in
	// the cart) is allowed here; only auto surfacing filters those out.
	amount := ComputeAmount(d, lines, subtotal)

	return &CodeResult{
		Applied:    newApplied(d, amount),
		ReplaceAll: replaceAll,
	}, nil
}

// resolveStacking applies the stacking contract between the new discount
// and the already-applied set: a non-stackable newcomer replaces the whole
// set, while a stackable one may only join if every existing discount is
// stackable too.
func (s *Service) resolveStacking(ctx context.Context, d *Discount, existingIDs []string) (replaceAll bool, err error) {
	if len(existingIDs) == 0 {
		return false, nil
	}
	if !d.Stackable {
		return true, nil
	}

	existing, err := s.discounts.FindByIDs(ctx, existingIDs)
	if err != nil {
		return false, errors.Wrap(err, "lookup applied discounts")
	}
	for i := range existing {
		if !existing[i].Stackable {
			return false, &StackConflictError{Code: existing[i].Code}
		}
	}
	return false, nil
}

// AutoApply surfaces the AUTO-method discounts the cart currently
// qualifies for, maximizing the customer's total discount while
// respecting the stacking contract.
func (s *Service) AutoApply(ctx context.Context, cartLines []CartLine) ([]Applied, error) {
	lines, err := s.ResolveLines(ctx, cartLines)
	if err != nil {
		return nil, errors.Wrap(err, "resolve cart")
	}
	subtotal := Subtotal(lines)

	now := s.now()
	ds, err := s.discounts.FindActiveAuto(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "find auto discounts")
	}

	candidates := make([]Applied, 0, len(ds))
	for i := range ds {
		d := &ds[i]
		if CheckGates(d, subtotal, now) != nil {
			continue
		}
		amount := ComputeAmount(d, lines, subtotal)
		// Zero contribution means the cart is not eligible, not that a
		// zero-value discount applies.
		if amount.IsZero() {
			continue
		}
		candidates = append(candidates, newApplied(d, amount))
	}

	return selectAuto(candidates), nil
}

// ResolveLines resolves unit prices for cart lines from the catalog.
// Lines whose product is missing or inactive are dropped so they
// contribute nothing to the subtotal; stock sanity is enforced upstream
// by the order committer.
func (s *Service) ResolveLines(ctx context.Context, cartLines []CartLine) ([]Line, error) {
	if len(cartLines) == 0 {
		return nil, nil
	}

	productIDs := make([]string, 0, len(cartLines))
	variantIDs := make([]string, 0, len(cartLines))
	for _, l := range cartLines {
		productIDs = append(productIDs, l.ProductID)
		if l.VariantID != "" {
			variantIDs = append(variantIDs, l.VariantID)
		}
	}

	products, err := s.catalog.ProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]*catalog.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	variantMap := make(map[string]*catalog.Variant)
	if len(variantIDs) > 0 {
		variants, err := s.catalog.VariantsByIDs(ctx, variantIDs)
		if err != nil {
			return nil, errors.Wrap(err, "get variants")
		}
		for i := range variants {
			variantMap[variants[i].ID] = &variants[i]
		}
	}

	lines := make([]Line, 0, len(cartLines))
	for _, l := range cartLines {
		p, ok := productMap[l.ProductID]
		if !ok || !p.Active || l.Quantity <= 0 {
			continue
		}
		price := p.Price
		if l.VariantID != "" {
			if v, ok := variantMap[l.VariantID]; ok {
				price = v.UnitPrice(p)
			}
		}
		lines = append(lines, Line{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: price,
		})
	}
	return lines, nil
}
