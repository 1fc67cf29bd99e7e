package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/catalog"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/discount"
)

// --- Mock implementations ---

type mockCatalog struct {
	products map[string]catalog.Product
	variants map[string]catalog.Variant
}

func (m *mockCatalog) List(_ context.Context) ([]catalog.Product, error) { return nil, nil }

func (m *mockCatalog) ProductsByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockCatalog) VariantsByIDs(_ context.Context, ids []string) ([]catalog.Variant, error) {
	var out []catalog.Variant
	for _, id := range ids {
		if v, ok := m.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *mockCatalog) VariantsByProductIDs(_ context.Context, _ []string) ([]catalog.Variant, error) {
	return nil, nil
}

type mockDiscountRepo struct {
	byCode map[string]*discount.Discount
}

func (m *mockDiscountRepo) FindByCode(_ context.Context, code string) (*discount.Discount, error) {
	d, ok := m.byCode[code]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return d, nil
}

func (m *mockDiscountRepo) FindByCodes(_ context.Context, codes []string) ([]discount.Discount, error) {
	var out []discount.Discount
	for _, c := range codes {
		if d, ok := m.byCode[c]; ok {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *mockDiscountRepo) FindByIDs(_ context.Context, _ []string) ([]discount.Discount, error) {
	return nil, nil
}

func (m *mockDiscountRepo) FindActiveAuto(_ context.Context, _ time.Time) ([]discount.Discount, error) {
	return nil, nil
}

func (m *mockDiscountRepo) Create(_ context.Context, _ *discount.Discount) error { return nil }

type cancelCall struct {
	orderID     string
	payment     *PaymentStatus
	refundUsage bool
}

type mockOrderRepo struct {
	byID        map[string]*Order
	created     *Order
	createdIDs  []string
	createErr   error
	cancelCalls []cancelCall
	cancelErr   error
	paidID      string
	paidTxn     string
	statusID    string
	status      Status
	expired     []Order
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListByCustomer(_ context.Context, _ string) ([]Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) List(_ context.Context, _, _ int) ([]Order, error) {
	return nil, nil
}

func (m *mockOrderRepo) CreateWithSideEffects(_ context.Context, o *Order, discountIDs []string) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = o
	m.createdIDs = discountIDs
	return nil
}

func (m *mockOrderRepo) CancelAndRestock(_ context.Context, orderID string, payment *PaymentStatus, refundUsage bool) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelCalls = append(m.cancelCalls, cancelCall{orderID, payment, refundUsage})
	return nil
}

func (m *mockOrderRepo) MarkPaid(_ context.Context, orderID, transactionID string) error {
	m.paidID = orderID
	m.paidTxn = transactionID
	return nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, orderID string, status Status) error {
	m.statusID = orderID
	m.status = status
	return nil
}

func (m *mockOrderRepo) FindExpiredPending(_ context.Context, _ time.Time) ([]Order, error) {
	out := m.expired
	m.expired = nil
	return out, nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(cat *mockCatalog, discounts *mockDiscountRepo, orders *mockOrderRepo) *Service {
	if discounts == nil {
		discounts = &mockDiscountRepo{}
	}
	s := NewService(cat, discounts, orders, DefaultPolicy())
	s.now = func() time.Time { return fixedNow }
	return s
}

func widgetCatalog(stock int) *mockCatalog {
	return &mockCatalog{products: map[string]catalog.Product{
		"p1": {ID: "p1", Name: "Widget", Price: dec("200.00"), Stock: stock, Active: true},
	}}
}

func orderDiscount(id, code, value string) *discount.Discount {
	return &discount.Discount{
		ID:     id,
		Code:   code,
		Type:   discount.TypePercentage,
		Scope:  discount.ScopeOrder,
		Method: discount.MethodCode,
		Value:  dec(value),
		Active: true,
	}
}

// --- Create ---

func TestCreate_Validation(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(widgetCatalog(10), nil, orders)

	_, err := svc.Create(context.Background(), CreateRequest{CustomerID: "u1", PaymentMethod: MethodCOD})
	require.ErrorIs(t, err, ErrEmptyItems)

	_, err = svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", Quantity: 1}},
		PaymentMethod: "PAYPAL",
	})
	require.ErrorIs(t, err, ErrInvalidPaymentMethod)

	_, err = svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", Quantity: 0}},
		PaymentMethod: MethodCOD,
	})
	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)

	assert.Nil(t, orders.created, "no order row on validation failure")
}

func TestCreate_ProductUnavailable(t *testing.T) {
	cat := &mockCatalog{products: map[string]catalog.Product{
		"p2": {ID: "p2", Name: "Retired", Price: dec("10.00"), Stock: 5, Active: false},
	}}
	orders := &mockOrderRepo{}
	svc := newTestService(cat, nil, orders)

	for _, id := range []string{"missing", "p2"} {
		_, err := svc.Create(context.Background(), CreateRequest{
			CustomerID:    "u1",
			Lines:         []discount.CartLine{{ProductID: id, Quantity: 1}},
			PaymentMethod: MethodCOD,
		})
		var puErr *ProductUnavailableError
		require.ErrorAs(t, err, &puErr)
		assert.Equal(t, id, puErr.ProductID)
	}
	assert.Nil(t, orders.created)
}

func TestCreate_InsufficientStock(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(widgetCatalog(3), nil, orders)

	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", Quantity: 4}},
		PaymentMethod: MethodCOD,
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Widget", stockErr.Name)
	assert.Equal(t, 3, stockErr.Available)
	assert.Nil(t, orders.created, "no mutation on stock failure")
}

func TestCreate_VariantStockAndPrice(t *testing.T) {
	override := dec("250.00")
	cat := &mockCatalog{
		products: map[string]catalog.Product{
			"p1": {ID: "p1", Name: "Widget", Price: dec("200.00"), Stock: 100, Active: true},
		},
		variants: map[string]catalog.Variant{
			"v1": {ID: "v1", ProductID: "p1", Name: "XL", Price: &override, Stock: 2},
		},
	}
	orders := &mockOrderRepo{}
	svc := newTestService(cat, nil, orders)

	// Variant stock governs even though the product has plenty.
	_, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", VariantID: "v1", Quantity: 3}},
		PaymentMethod: MethodCOD,
	})
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)

	// Variant price overrides the product price in the snapshot.
	o, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", VariantID: "v1", Quantity: 2}},
		PaymentMethod: MethodCOD,
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.True(t, dec("250.00").Equal(o.Items[0].Price))
	assert.True(t, dec("500.00").Equal(o.Subtotal))

	// Unknown variant fails the order.
	_, err = svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", VariantID: "ghost", Quantity: 1}},
		PaymentMethod: MethodCOD,
	})
	var vuErr *VariantUnavailableError
	require.ErrorAs(t, err, &vuErr)
}

func TestCreate_PricingRoundTrip(t *testing.T) {
	// $200 subtotal, 10% ORDER discount: discount 20.00, free shipping,
	// tax (200-20)*0.08 = 14.40, total 194.40.
	discounts := &mockDiscountRepo{byCode: map[string]*discount.Discount{
		"SAVE10": orderDiscount("d1", "SAVE10", "10"),
	}}
	orders := &mockOrderRepo{}
	svc := newTestService(widgetCatalog(10), discounts, orders)

	o, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", Quantity: 1}},
		DiscountCodes: "save10",
		PaymentMethod: MethodCOD,
	})

	require.NoError(t, err)
	assert.True(t, dec("200.00").Equal(o.Subtotal))
	assert.True(t, dec("20.00").Equal(o.DiscountAmount))
	assert.True(t, decimal.Zero.Equal(o.ShippingCost))
	assert.True(t, dec("14.40").Equal(o.Tax))
	assert.True(t, dec("194.40").Equal(o.Total))
	assert.Equal(t, "d1", o.DiscountID)
	assert.Equal(t, "SAVE10", o.DiscountCode)
	assert.Equal(t, []string{"d1"}, orders.createdIDs)
}

func TestCreate_ShippingBelowThreshold(t *testing.T) {
	cat := &mockCatalog{products: map[string]catalog.Product{
		"p1": {ID: "p1", Name: "Trinket", Price: dec("50.00"), Stock: 10, Active: true},
	}}
	svc := newTestService(cat, nil, &mockOrderRepo{})

	o, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", Quantity: 1}},
		PaymentMethod: MethodCOD,
	})

	require.NoError(t, err)
	assert.True(t, dec("10").Equal(o.ShippingCost))
	assert.True(t, dec("4.00").Equal(o.Tax))
	assert.True(t, dec("64.00").Equal(o.Total))
}

func TestCreate_MultipleCodesNonStackableExcluded(t *testing.T) {
	stackable := orderDiscount("d1", "TEN", "10")
	stackable.Stackable = true
	solo := orderDiscount("d2", "SOLO", "50")

	discounts := &mockDiscountRepo{byCode: map[string]*discount.Discount{
		"TEN": stackable, "SOLO": solo,
	}}
	orders := &mockOrderRepo{}
	svc := newTestService(widgetCatalog(10), discounts, orders)

	o, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", Quantity: 1}},
		DiscountCodes: "TEN,SOLO",
		PaymentMethod: MethodCOD,
	})

	// SOLO is individually excluded; the order still goes through with TEN.
	require.NoError(t, err)
	assert.True(t, dec("20.00").Equal(o.DiscountAmount))
	assert.Equal(t, "TEN", o.DiscountCode)
	assert.Equal(t, []string{"d1"}, orders.createdIDs)
}

func TestCreate_ServerRecomputationWins(t *testing.T) {
	// The client saw an expired discount at checkout time; the server
	// drops it and commits without any discount.
	past := fixedNow.Add(-time.Hour)
	expired := orderDiscount("d1", "SAVE10", "10")
	expired.ExpiresAt = &past

	discounts := &mockDiscountRepo{byCode: map[string]*discount.Discount{"SAVE10": expired}}
	orders := &mockOrderRepo{}
	svc := newTestService(widgetCatalog(10), discounts, orders)

	o, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", Quantity: 1}},
		DiscountCodes: "SAVE10",
		PaymentMethod: MethodCOD,
	})

	require.NoError(t, err)
	assert.True(t, o.DiscountAmount.IsZero())
	assert.Empty(t, o.DiscountCode)
	assert.Empty(t, orders.createdIDs)
	assert.True(t, dec("216.00").Equal(o.Total)) // 200 + 16.00 tax
}

func TestCreate_DiscountCappedAtSubtotal(t *testing.T) {
	big := orderDiscount("d1", "ALL", "100")
	discounts := &mockDiscountRepo{byCode: map[string]*discount.Discount{"ALL": big}}
	svc := newTestService(widgetCatalog(10), discounts, &mockOrderRepo{})

	o, err := svc.Create(context.Background(), CreateRequest{
		CustomerID:    "u1",
		Lines:         []discount.CartLine{{ProductID: "p1", Quantity: 1}},
		DiscountCodes: "ALL",
		PaymentMethod: MethodCOD,
	})

	require.NoError(t, err)
	assert.True(t, o.DiscountAmount.Equal(o.Subtotal))
	assert.True(t, o.Tax.IsZero())
	assert.True(t, decimal.Zero.Equal(o.Total))
}

func TestCreate_PaymentBranching(t *testing.T) {
	tests := []struct {
		method       PaymentMethod
		wantExpiry   bool
		wantCurrency string
	}{
		{MethodCOD, false, "USD"},
		{MethodStripe, true, "USD"},
		{MethodMoMo, true, "VND"},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			svc := newTestService(widgetCatalog(10), nil, &mockOrderRepo{})
			o, err := svc.Create(context.Background(), CreateRequest{
				CustomerID:    "u1",
				Lines:         []discount.CartLine{{ProductID: "p1", Quantity: 1}},
				PaymentMethod: tt.method,
			})

			require.NoError(t, err)
			assert.Equal(t, PaymentPending, o.PaymentStatus)
			assert.Equal(t, StatusPending, o.Status)
			assert.Equal(t, tt.wantCurrency, o.Currency)
			if tt.wantExpiry {
				require.NotNil(t, o.PaymentExpiry)
				assert.Equal(t, fixedNow.Add(30*time.Minute), *o.PaymentExpiry)
			} else {
				assert.Nil(t, o.PaymentExpiry)
			}
		})
	}
}

// --- Lifecycle ---

func TestCancel(t *testing.T) {
	orders := &mockOrderRepo{byID: map[string]*Order{
		"o1": {ID: "o1", CustomerID: "u1", Status: StatusPending},
		"o2": {ID: "o2", CustomerID: "u1", Status: StatusShipped},
	}}
	svc := newTestService(widgetCatalog(10), nil, orders)

	require.NoError(t, svc.Cancel(context.Background(), "o1", "u1"))
	require.Len(t, orders.cancelCalls, 1)
	assert.Equal(t, "o1", orders.cancelCalls[0].orderID)
	assert.Nil(t, orders.cancelCalls[0].payment)
	assert.False(t, orders.cancelCalls[0].refundUsage)

	err := svc.Cancel(context.Background(), "o2", "u1")
	require.ErrorIs(t, err, ErrNotCancellable)

	err = svc.Cancel(context.Background(), "o1", "someone-else")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(widgetCatalog(10), nil, orders)

	require.NoError(t, svc.UpdateStatus(context.Background(), "o1", StatusShipped))
	assert.Equal(t, StatusShipped, orders.status)

	err := svc.UpdateStatus(context.Background(), "o1", "TELEPORTED")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestApplyPaymentEvent(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(widgetCatalog(10), nil, orders)

	require.NoError(t, svc.ApplyPaymentEvent(context.Background(), PaymentEvent{
		OrderID: "o1", TransactionID: "txn_1", Kind: PaymentEventSucceeded,
	}))
	assert.Equal(t, "o1", orders.paidID)
	assert.Equal(t, "txn_1", orders.paidTxn)

	require.NoError(t, svc.ApplyPaymentEvent(context.Background(), PaymentEvent{
		OrderID: "o2", Kind: PaymentEventFailed,
	}))
	require.Len(t, orders.cancelCalls, 1)
	require.NotNil(t, orders.cancelCalls[0].payment)
	assert.Equal(t, PaymentFailed, *orders.cancelCalls[0].payment)

	// Redelivery against an already-final order is a no-op.
	orders.cancelErr = ErrNotCancellable
	require.NoError(t, svc.ApplyPaymentEvent(context.Background(), PaymentEvent{
		OrderID: "o2", Kind: PaymentEventExpired,
	}))

	err := svc.ApplyPaymentEvent(context.Background(), PaymentEvent{OrderID: "o3", Kind: "mystery"})
	require.Error(t, err)
}

func TestExpirePendingPayments(t *testing.T) {
	orders := &mockOrderRepo{expired: []Order{
		{ID: "o1", PaymentStatus: PaymentPending},
		{ID: "o2", PaymentStatus: PaymentPending},
	}}
	svc := newTestService(widgetCatalog(10), nil, orders)

	n, err := svc.ExpirePendingPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, orders.cancelCalls, 2)
	assert.Equal(t, PaymentExpired, *orders.cancelCalls[0].payment)

	// Second sweep finds nothing: idempotent.
	n, err = svc.ExpirePendingPayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
