package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
	Sweep       SweepConfig
	Checkout    CheckoutConfig
	Stripe      StripeConfig
	MoMo        MoMoConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// SweepConfig controls the background payment expiry sweep.
type SweepConfig struct {
	Enabled  bool          `default:"true" usage:"Run the payment expiry sweep in-process"`
	Interval time.Duration `default:"1m"   usage:"Payment expiry sweep interval"`
}

// CheckoutConfig holds the pricing policy knobs. Monetary values are decimal
// strings.
type CheckoutConfig struct {
	FreeShippingMin     string        `default:"100"  usage:"Subtotal threshold for free shipping" flag:"free-shipping-min"`
	ShippingCost        string        `default:"10"   usage:"Flat shipping cost below the threshold" flag:"shipping-cost"`
	TaxRate             string        `default:"0.08" usage:"Tax rate applied to the discounted subtotal" flag:"tax-rate"`
	PaymentExpiry       time.Duration `default:"30m"  usage:"Payment window for non-COD orders" flag:"payment-expiry"`
	RefundDiscountUsage bool          `default:"false" usage:"Decrement discount usage on cancellation" flag:"refund-discount-usage"`
}

// Policy converts the checkout configuration into the order pricing policy.
func (c CheckoutConfig) Policy() (order.Policy, error) {
	freeShippingMin, err := decimal.NewFromString(c.FreeShippingMin)
	if err != nil {
		return order.Policy{}, errors.Wrap(err, "parse free shipping minimum")
	}
	shippingCost, err := decimal.NewFromString(c.ShippingCost)
	if err != nil {
		return order.Policy{}, errors.Wrap(err, "parse shipping cost")
	}
	taxRate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return order.Policy{}, errors.Wrap(err, "parse tax rate")
	}
	return order.Policy{
		FreeShippingMin:     freeShippingMin,
		ShippingCost:        shippingCost,
		TaxRate:             taxRate,
		PaymentExpiry:       c.PaymentExpiry,
		RefundDiscountUsage: c.RefundDiscountUsage,
	}, nil
}

// StripeConfig holds the Stripe credentials. Empty APIKey disables the
// provider.
type StripeConfig struct {
	APIKey        string `usage:"Stripe secret key (SHOP_STRIPE_API_KEY)" flag:"stripe-api-key"`
	WebhookSecret string `usage:"Stripe webhook signing secret" flag:"stripe-webhook-secret"`
}

// MoMoConfig holds the MoMo merchant credentials. Empty PartnerCode disables
// the provider.
type MoMoConfig struct {
	Endpoint    string `default:"https://payment.momo.vn/gw_payment/transactionProcessor" usage:"MoMo gateway endpoint"`
	PartnerCode string `usage:"MoMo partner code" flag:"momo-partner-code"`
	AccessKey   string `usage:"MoMo access key" flag:"momo-access-key"`
	SecretKey   string `usage:"MoMo secret key" flag:"momo-secret-key"`
	ReturnURL   string `usage:"URL the customer returns to after payment" flag:"momo-return-url"`
	NotifyURL   string `usage:"URL MoMo posts payment notifications to" flag:"momo-notify-url"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
