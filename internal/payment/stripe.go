package payment

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
)

// centsPerUnit converts a decimal amount to Stripe's smallest-unit integers.
var centsPerUnit = decimal.NewFromInt(100)

// StripeConfig holds the Stripe API credentials.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
}

// StripeProvider collects card payments through Stripe payment intents.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a Stripe provider with its own API client.
func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	api := &client.API{}
	api.Init(cfg.APIKey, nil)
	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

// Method implements Provider.
func (p *StripeProvider) Method() order.PaymentMethod { return order.MethodStripe }

// CreatePayment registers a payment intent for the order total. The order id
// travels in the intent metadata so webhooks can be correlated back.
func (p *StripeProvider) CreatePayment(ctx context.Context, o *order.Order) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context: ctx,
			Metadata: map[string]string{
				"order_id": o.ID,
			},
		},
		// Stripe amounts are in the smallest currency unit.
		Amount:   stripe.Int64(o.Total.Mul(centsPerUnit).IntPart()),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}

	intent, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create payment intent")
	}

	return &Intent{
		ProviderRef:  intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps payment intent
// events onto payment events. Unhandled event types return (nil, nil).
func (p *StripeProvider) ParseWebhook(header http.Header, body []byte) (*order.PaymentEvent, error) {
	event, err := webhook.ConstructEvent(body, header.Get("Stripe-Signature"), p.webhookSecret)
	if err != nil {
		return nil, errors.Wrap(err, "verify webhook signature")
	}

	var kind order.PaymentEventKind
	switch event.Type {
	case "payment_intent.succeeded":
		kind = order.PaymentEventSucceeded
	case "payment_intent.payment_failed":
		kind = order.PaymentEventFailed
	case "payment_intent.canceled":
		kind = order.PaymentEventExpired
	default:
		return nil, nil
	}

	var intent struct {
		ID       string            `json:"id"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, errors.Wrap(err, "decode payment intent")
	}

	orderID := intent.Metadata["order_id"]
	if orderID == "" {
		return nil, errors.New("payment intent missing order_id metadata")
	}

	return &order.PaymentEvent{
		OrderID:       orderID,
		TransactionID: intent.ID,
		Kind:          kind,
	}, nil
}
