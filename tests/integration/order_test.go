//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"testing"
)

const (
	aliceID = "cust-alice"
	bobID   = "cust-bob"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestCreateOrder_NoAuth(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-espresso", Quantity: 1}},
		PaymentMethod: "COD",
	}
	resp := doPost(t, "/api/orders", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	req := orderRequest{Items: []cartItem{}, PaymentMethod: "COD"}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_InvalidPaymentMethod(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-espresso", Quantity: 1}},
		PaymentMethod: "BARTER",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-nonexistent", Quantity: 1}},
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-scale", Quantity: 5}}, // stock is 1
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorEnvelope](t, resp)
	if body.Error != "insufficient stock for Precision Scale. Available: 1" {
		t.Errorf("error: got %q", body.Error)
	}
}

func TestCreateOrder_COD(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-espresso", Quantity: 2}}, // 2 x $120
		DiscountCodes: "WELCOME10",
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	body := decodeJSON[orderEnvelope](t, resp)
	o := body.Order

	if !uuidPattern.MatchString(o.ID) {
		t.Errorf("order ID %q is not a valid UUID", o.ID)
	}
	if o.Status != "PENDING" || o.PaymentStatus != "PENDING" {
		t.Errorf("status: got %s/%s, want PENDING/PENDING", o.Status, o.PaymentStatus)
	}
	if o.Currency != "USD" {
		t.Errorf("currency: got %q, want USD", o.Currency)
	}
	if o.PaymentExpiry != nil {
		t.Error("COD order should not have a payment expiry")
	}
	if o.DiscountCode != "WELCOME10" {
		t.Errorf("discountCode: got %q", o.DiscountCode)
	}

	wantDecimal(t, o.Subtotal, "240", "subtotal")
	wantDecimal(t, o.DiscountAmount, "24", "discountAmount")
	wantDecimal(t, o.ShippingCost, "0", "shippingCost") // over free shipping threshold
	wantDecimal(t, o.Tax, "17.28", "tax")               // (240 - 24) * 8%
	wantDecimal(t, o.Total, "233.28", "total")
}

func TestCreateOrder_StackedCodes(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-espresso", Quantity: 2}},
		DiscountCodes: "WELCOME10,TAKE5",
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderEnvelope](t, resp).Order
	wantDecimal(t, o.DiscountAmount, "29", "discountAmount") // 24 + 5
	wantDecimal(t, o.Tax, "16.88", "tax")                    // (240 - 29) * 8%
	wantDecimal(t, o.Total, "227.88", "total")
}

func TestCreateOrder_NonStackableDroppedFromMultiCode(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-espresso", Quantity: 2}},
		DiscountCodes: "WELCOME10,HALFOFF",
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderEnvelope](t, resp).Order
	wantDecimal(t, o.DiscountAmount, "24", "discountAmount")
	if o.DiscountCode != "WELCOME10" {
		t.Errorf("discountCode: got %q, want WELCOME10", o.DiscountCode)
	}
}

func TestCreateOrder_ExpiredCodeDropped(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-espresso", Quantity: 2}},
		DiscountCodes: "RETRO15",
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderEnvelope](t, resp).Order
	wantDecimal(t, o.DiscountAmount, "0", "discountAmount")
	wantDecimal(t, o.Total, "259.2", "total") // 240 + 19.20 tax
}

func TestCreateOrder_ShippingBelowThreshold(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-filters", Quantity: 2}}, // 2 x $8
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderEnvelope](t, resp).Order
	wantDecimal(t, o.Subtotal, "16", "subtotal")
	wantDecimal(t, o.ShippingCost, "10", "shippingCost")
	wantDecimal(t, o.Tax, "1.28", "tax")
	wantDecimal(t, o.Total, "27.28", "total")
}

func TestCreateOrder_VariantPricing(t *testing.T) {
	req := orderRequest{
		Items: []cartItem{
			{ProductID: "p-grinder", VariantID: "v-grinder-steel", Quantity: 1}, // $95 override
		},
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderEnvelope](t, resp).Order
	wantDecimal(t, o.Subtotal, "95", "subtotal")
	wantDecimal(t, o.ShippingCost, "10", "shippingCost")
	wantDecimal(t, o.Tax, "7.6", "tax")
	wantDecimal(t, o.Total, "112.6", "total")

	if len(o.Items) != 1 || o.Items[0].Name != "Burr Grinder Steel" {
		t.Errorf("items: got %+v", o.Items)
	}
}

func TestCreateOrder_StripePaymentWindow(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-kettle", Quantity: 1}},
		PaymentMethod: "STRIPE",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderEnvelope](t, resp).Order
	if o.PaymentExpiry == nil {
		t.Error("STRIPE order should have a payment expiry")
	}
	if o.Currency != "USD" {
		t.Errorf("currency: got %q, want USD", o.Currency)
	}
}

func TestCreateOrder_MoMoCurrency(t *testing.T) {
	req := orderRequest{
		Items:         []cartItem{{ProductID: "p-kettle", Quantity: 1}},
		PaymentMethod: "MOMO",
	}
	resp := doPostAs(t, "/api/orders", req, aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderEnvelope](t, resp).Order
	if o.Currency != "VND" {
		t.Errorf("currency: got %q, want VND", o.Currency)
	}
	if o.PaymentExpiry == nil {
		t.Error("MOMO order should have a payment expiry")
	}
}

func TestCancelOrder(t *testing.T) {
	create := orderRequest{
		Items:         []cartItem{{ProductID: "p-filters", Quantity: 1}},
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", create, bobID)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	orderID := decodeJSON[orderEnvelope](t, resp).Order.ID
	resp.Body.Close()

	// First cancel succeeds.
	resp = doPostAs(t, "/api/orders/"+orderID+"/cancel", nil, bobID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Second cancel conflicts: the order is already CANCELLED.
	resp = doPostAs(t, "/api/orders/"+orderID+"/cancel", nil, bobID)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("re-cancel: expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doGetAs(t, "/api/orders/"+orderID, bobID)
	defer resp.Body.Close()
	o := decodeJSON[orderEnvelope](t, resp).Order
	if o.Status != "CANCELLED" {
		t.Errorf("status after cancel: got %q, want CANCELLED", o.Status)
	}
}

func TestGetOrder_OwnershipEnforced(t *testing.T) {
	create := orderRequest{
		Items:         []cartItem{{ProductID: "p-filters", Quantity: 1}},
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", create, bobID)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	orderID := decodeJSON[orderEnvelope](t, resp).Order.ID
	resp.Body.Close()

	// Another customer cannot see the order.
	resp = doGetAs(t, "/api/orders/"+orderID, aliceID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestListOrders(t *testing.T) {
	resp := doGetAs(t, "/api/orders", aliceID)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[ordersEnvelope](t, resp)
	if len(body.Orders) == 0 {
		t.Error("expected at least one order for alice")
	}
	for _, o := range body.Orders {
		if o.ID == "" {
			t.Error("order with empty ID in listing")
		}
	}
}

func TestAdminListOrders(t *testing.T) {
	create := orderRequest{
		Items:         []cartItem{{ProductID: "p-filters", Quantity: 2}},
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", create, bobID)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	orderID := decodeJSON[orderEnvelope](t, resp).Order.ID
	resp.Body.Close()

	resp = doGet(t, "/api/admin/orders")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[ordersEnvelope](t, resp)
	found := false
	for _, o := range body.Orders {
		if o.ID == orderID {
			found = true
		}
	}
	if !found {
		t.Errorf("order %s missing from admin listing", orderID)
	}
}

func TestAdminUpdateOrderStatus(t *testing.T) {
	create := orderRequest{
		Items:         []cartItem{{ProductID: "p-kettle", Quantity: 1}},
		PaymentMethod: "COD",
	}
	resp := doPostAs(t, "/api/orders", create, aliceID)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	orderID := decodeJSON[orderEnvelope](t, resp).Order.ID
	resp.Body.Close()

	resp = doJSON(t, http.MethodPatch, "/api/admin/orders/"+orderID+"/status",
		map[string]string{"status": "CONFIRMED"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, http.MethodPatch, "/api/admin/orders/"+orderID+"/status",
		map[string]string{"status": "TELEPORTED"}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status: expected 400, got %d", resp.StatusCode)
	}
}

func TestExpirePaymentsEndpoint(t *testing.T) {
	resp := doPost(t, "/api/internal/expire-payments", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := decodeJSON[struct {
		Success bool `json:"success"`
		Expired int  `json:"expired"`
	}](t, resp)
	if !body.Success {
		t.Error("expected success envelope")
	}
	if body.Expired < 0 {
		t.Errorf("expired: got %d", body.Expired)
	}
}
