// Package payment integrates external payment providers. Providers verify
// webhook authenticity and translate provider payloads into neutral payment
// events; the order service owns what happens next.
package payment

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
)

// ErrUnknownProvider is returned when a webhook names a provider that is not
// registered.
var ErrUnknownProvider = errors.New("unknown payment provider")

// Intent is what the storefront needs to send the customer off to pay.
type Intent struct {
	// ProviderRef is the provider-side identifier of the payment.
	ProviderRef string
	// ClientSecret is passed to the browser SDK (Stripe).
	ClientSecret string
	// RedirectURL sends the customer to a hosted payment page (MoMo).
	RedirectURL string
}

// Provider collects payment for an order and verifies its webhooks.
type Provider interface {
	// Method is the payment method this provider serves.
	Method() order.PaymentMethod

	// CreatePayment registers the order with the provider and returns what
	// the client needs to complete payment.
	CreatePayment(ctx context.Context, o *order.Order) (*Intent, error)

	// ParseWebhook authenticates a webhook delivery and maps it to a
	// payment event. Deliveries that are valid but irrelevant (unhandled
	// event types) return (nil, nil).
	ParseWebhook(header http.Header, body []byte) (*order.PaymentEvent, error)
}

// Registry routes webhook deliveries and payment creation to the provider
// serving each payment method.
type Registry struct {
	byName   map[string]Provider
	byMethod map[order.PaymentMethod]Provider
}

// NewRegistry indexes the given providers by name and payment method.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{
		byName:   make(map[string]Provider, len(providers)),
		byMethod: make(map[order.PaymentMethod]Provider, len(providers)),
	}
	for _, p := range providers {
		r.byName[providerName(p.Method())] = p
		r.byMethod[p.Method()] = p
	}
	return r
}

// ByName returns the provider registered under the given webhook name.
func (r *Registry) ByName(name string) (Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// ForOrder returns the provider serving the order's payment method, or nil
// when the method needs no provider (cash on delivery).
func (r *Registry) ForOrder(o *order.Order) Provider {
	return r.byMethod[o.PaymentMethod]
}

func providerName(m order.PaymentMethod) string {
	switch m {
	case order.MethodStripe:
		return "stripe"
	case order.MethodMoMo:
		return "momo"
	}
	return string(m)
}
