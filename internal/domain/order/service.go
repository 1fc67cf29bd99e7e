package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/catalog"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/discount"
)

// Policy holds the checkout business constants. Defaults mirror the
// storefront's observed behavior; RefundDiscountUsage stays false because
// the first redemption of a discount sticks even if the order is later
// cancelled or expires.
type Policy struct {
	FreeShippingMin     decimal.Decimal
	ShippingCost        decimal.Decimal
	TaxRate             decimal.Decimal
	PaymentExpiry       time.Duration
	RefundDiscountUsage bool
}

// DefaultPolicy returns the production checkout policy: free shipping at
// 100, flat 10 otherwise, 8% tax on the discounted subtotal, 30-minute
// payment window for non-COD methods.
func DefaultPolicy() Policy {
	return Policy{
		FreeShippingMin: decimal.NewFromInt(100),
		ShippingCost:    decimal.NewFromInt(10),
		TaxRate:         decimal.RequireFromString("0.08"),
		PaymentExpiry:   30 * time.Minute,
	}
}

// CreateRequest is the input for committing a checkout.
type CreateRequest struct {
	CustomerID    string
	Lines         []discount.CartLine
	AddressID     string
	Note          string
	DiscountCodes string // comma-joined code list, optional
	PaymentMethod PaymentMethod
}

// PaymentEventKind classifies post-verification webhook events.
type PaymentEventKind string

const (
	PaymentEventSucceeded PaymentEventKind = "succeeded"
	PaymentEventFailed    PaymentEventKind = "failed"
	PaymentEventExpired   PaymentEventKind = "expired"
)

// PaymentEvent is a payment-provider notification after the provider
// collaborator has verified its signature.
type PaymentEvent struct {
	OrderID       string
	TransactionID string
	Kind          PaymentEventKind
}

// Service orchestrates order creation and lifecycle transitions. Client
// state is never trusted: prices, stock, and discount amounts are all
// re-resolved server-side before the commit transaction.
type Service struct {
	catalog   catalog.Reader
	discounts discount.Repository
	orders    Repository
	policy    Policy
	now       func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(cat catalog.Reader, discounts discount.Repository, orders Repository, policy Policy) *Service {
	return &Service{
		catalog:   cat,
		discounts: discounts,
		orders:    orders,
		policy:    policy,
		now:       time.Now,
	}
}

// Create validates the cart against the catalog, recomputes pricing and
// discounts, and commits the order atomically with its stock and usage
// side effects. Any validation failure aborts before mutation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyItems
	}
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	for _, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: l.ProductID}
		}
	}

	items, lines, err := s.resolveStrict(ctx, req.Lines)
	if err != nil {
		return nil, err
	}
	subtotal := discount.Subtotal(lines).Round(2)

	now := s.now()
	applied, err := s.resolveDiscounts(ctx, req.DiscountCodes, lines, subtotal, now)
	if err != nil {
		return nil, err
	}

	discountAmount := decimal.Zero
	for _, a := range applied {
		discountAmount = discountAmount.Add(a.Amount)
	}
	if discountAmount.GreaterThan(subtotal) {
		discountAmount = subtotal
	}
	discountAmount = discountAmount.Round(2)

	shipping := s.policy.ShippingCost
	if subtotal.GreaterThanOrEqual(s.policy.FreeShippingMin) {
		shipping = decimal.Zero
	}
	tax := subtotal.Sub(discountAmount).Mul(s.policy.TaxRate).Round(2)
	total := subtotal.Sub(discountAmount).Add(shipping).Add(tax).Round(2)

	o := &Order{
		ID:             uuid.New().String(),
		CustomerID:     req.CustomerID,
		AddressID:      req.AddressID,
		Note:           req.Note,
		Items:          items,
		Subtotal:       subtotal,
		ShippingCost:   shipping,
		Tax:            tax,
		DiscountAmount: discountAmount,
		Total:          total,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  PaymentPending,
		Status:         StatusPending,
		Currency:       "USD",
		CreatedAt:      now,
	}

	discountIDs := make([]string, 0, len(applied))
	codes := make([]string, 0, len(applied))
	for _, a := range applied {
		discountIDs = append(discountIDs, a.DiscountID)
		codes = append(codes, a.Code)
	}
	if len(applied) > 0 {
		o.DiscountID = applied[0].DiscountID
		o.DiscountCode = strings.Join(codes, ",")
	}

	// Non-COD payments get a bounded window to complete; the expiry sweep
	// cancels and restocks orders that miss it.
	if req.PaymentMethod != MethodCOD {
		expiry := now.Add(s.policy.PaymentExpiry)
		o.PaymentExpiry = &expiry
	}
	if req.PaymentMethod == MethodMoMo {
		o.Currency = "VND"
	}

	if err := s.orders.CreateWithSideEffects(ctx, o, discountIDs); err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			return nil, stockErr
		}
		return nil, errors.Wrap(err, "commit order")
	}
	return o, nil
}

// resolveStrict resolves every cart line against the catalog, failing the
// whole operation on any missing/inactive product, unknown variant, or
// insufficient stock. Prices come from the catalog only.
func (s *Service) resolveStrict(ctx context.Context, cartLines []discount.CartLine) ([]OrderItem, []discount.Line, error) {
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
		return nil, nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]*catalog.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	variantMap := make(map[string]*catalog.Variant)
	if len(variantIDs) > 0 {
		variants, err := s.catalog.VariantsByIDs(ctx, variantIDs)
		if err != nil {
			return nil, nil, errors.Wrap(err, "get variants")
		}
		for i := range variants {
			variantMap[variants[i].ID] = &variants[i]
		}
	}

	items := make([]OrderItem, 0, len(cartLines))
	lines := make([]discount.Line, 0, len(cartLines))
	for _, l := range cartLines {
		p, ok := productMap[l.ProductID]
		if !ok || !p.Active {
			return nil, nil, &ProductUnavailableError{ProductID: l.ProductID}
		}

		price := p.Price
		stock := p.Stock
		name := p.Name
		if l.VariantID != "" {
			v, ok := variantMap[l.VariantID]
			if !ok || v.ProductID != p.ID {
				return nil, nil, &VariantUnavailableError{VariantID: l.VariantID}
			}
			price = v.UnitPrice(p)
			stock = v.Stock
			name = p.Name + " " + v.Name
		}
		if l.Quantity > stock {
			return nil, nil, &InsufficientStockError{Name: name, Available: stock}
		}

		items = append(items, OrderItem{
			ID:        uuid.New().String(),
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      name,
			Quantity:  l.Quantity,
			Price:     price,
		})
		lines = append(lines, discount.Line{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: price,
		})
	}
	return items, lines, nil
}

// resolveDiscounts re-runs the discount gates server-side for the supplied
// code list. Codes that fail a gate are dropped rather than failing the
// order, and when several codes are supplied every non-stackable entry is
// individually excluded.
func (s *Service) resolveDiscounts(ctx context.Context, codesCSV string, lines []discount.Line, subtotal decimal.Decimal, now time.Time) ([]discount.Applied, error) {
	codes := splitCodes(codesCSV)
	if len(codes) == 0 {
		return nil, nil
	}

	found, err := s.discounts.FindByCodes(ctx, codes)
	if err != nil {
		return nil, errors.Wrap(err, "find discounts")
	}
	byCode := make(map[string]*discount.Discount, len(found))
	for i := range found {
		byCode[found[i].Code] = &found[i]
	}

	applied := make([]discount.Applied, 0, len(codes))
	for _, code := range codes {
		d, ok := byCode[code]
		if !ok || !d.Active {
			continue
		}
		if len(codes) > 1 && !d.Stackable {
			continue
		}
		if discount.CheckGates(d, subtotal, now) != nil {
			continue
		}
		amount := discount.ComputeAmount(d, lines, subtotal)
		if amount.IsZero() {
			continue
		}
		applied = append(applied, discount.Applied{
			DiscountID: d.ID,
			Code:       d.Code,
			Amount:     amount,
			Stackable:  d.Stackable,
		})
	}
	return applied, nil
}

// splitCodes normalizes a comma-joined code list: trim, upper-case, drop
// empties, dedupe preserving order.
func splitCodes(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var codes []string
	for _, c := range strings.Split(csv, ",") {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	return codes
}

// Cancel transitions a customer's order to CANCELLED and restores stock.
// Permitted only while the order is PENDING or CONFIRMED. Discount usage
// is not refunded unless the policy says otherwise.
func (s *Service) Cancel(ctx context.Context, orderID, customerID string) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if customerID != "" && o.CustomerID != customerID {
		return ErrNotFound
	}
	if !o.Cancellable() {
		return ErrNotCancellable
	}
	return s.orders.CancelAndRestock(ctx, orderID, nil, s.policy.RefundDiscountUsage)
}

// UpdateStatus is the admin fulfillment transition. It moves the order to
// any of the seven statuses without touching stock or payment state.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return s.orders.UpdateStatus(ctx, orderID, status)
}

// ApplyPaymentEvent maps a verified provider event onto the lifecycle:
// success confirms the order, failure or expiry cancels it and restores
// stock.
func (s *Service) ApplyPaymentEvent(ctx context.Context, ev PaymentEvent) error {
	switch ev.Kind {
	case PaymentEventSucceeded:
		return s.orders.MarkPaid(ctx, ev.OrderID, ev.TransactionID)
	case PaymentEventFailed:
		st := PaymentFailed
		return s.cancelIfPossible(ctx, ev.OrderID, &st)
	case PaymentEventExpired:
		st := PaymentExpired
		return s.cancelIfPossible(ctx, ev.OrderID, &st)
	default:
		return errors.Errorf("unknown payment event kind %q", ev.Kind)
	}
}

// cancelIfPossible treats an already-final order as a no-op so provider
// retries stay idempotent.
func (s *Service) cancelIfPossible(ctx context.Context, orderID string, payment *PaymentStatus) error {
	err := s.orders.CancelAndRestock(ctx, orderID, payment, s.policy.RefundDiscountUsage)
	if errors.Is(err, ErrNotCancellable) {
		return nil
	}
	return err
}

// ExpirePendingPayments cancels and restocks every non-COD order whose
// payment window has lapsed while still PENDING. Safe to run repeatedly:
// the PENDING precondition makes a second pass a no-op. Returns the number
// of orders expired.
func (s *Service) ExpirePendingPayments(ctx context.Context) (int, error) {
	expired, err := s.orders.FindExpiredPending(ctx, s.now())
	if err != nil {
		return 0, errors.Wrap(err, "find expired orders")
	}

	count := 0
	st := PaymentExpired
	for i := range expired {
		err := s.orders.CancelAndRestock(ctx, expired[i].ID, &st, s.policy.RefundDiscountUsage)
		if errors.Is(err, ErrNotCancellable) {
			continue
		}
		if err != nil {
			return count, errors.Wrapf(err, "expire order %s", expired[i].ID)
		}
		count++
	}
	return count, nil
}
