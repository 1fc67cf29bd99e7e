// Package app wires the storefront API server: storage, domain services,
// payment providers, HTTP surface, and the background payment expiry sweep.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lv7dev/shop-v2-sub000/internal/api"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/discount"
	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
	"github.com/lv7dev/shop-v2-sub000/internal/payment"
	"github.com/lv7dev/shop-v2-sub000/internal/storage/postgres"
	"github.com/lv7dev/shop-v2-sub000/pkg/health"
	"github.com/lv7dev/shop-v2-sub000/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the expiry sweep,
// and handles graceful shutdown. It is the single wiring point for the
// application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(time.Second),
		health.WithFailureThreshold(5))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	catalogRepo := postgres.NewCatalogRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	discountRepo := postgres.NewDiscountRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	// Domain services.
	policy, err := cfg.Checkout.Policy()
	if err != nil {
		return errors.Wrap(err, "checkout policy")
	}
	discountService := discount.NewService(discountRepo, catalogRepo, customerRepo)
	orderService := order.NewService(catalogRepo, discountRepo, orderRepo, policy)

	// Payment providers. Unconfigured providers stay unregistered; their
	// payment methods then commit orders without a payment session.
	var providers []payment.Provider
	if cfg.Stripe.APIKey != "" {
		providers = append(providers, payment.NewStripeProvider(payment.StripeConfig{
			APIKey:        cfg.Stripe.APIKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		}))
	}
	if cfg.MoMo.PartnerCode != "" {
		providers = append(providers, payment.NewMoMoProvider(payment.MoMoConfig{
			Endpoint:    cfg.MoMo.Endpoint,
			PartnerCode: cfg.MoMo.PartnerCode,
			AccessKey:   cfg.MoMo.AccessKey,
			SecretKey:   cfg.MoMo.SecretKey,
			ReturnURL:   cfg.MoMo.ReturnURL,
			NotifyURL:   cfg.MoMo.NotifyURL,
		}, nil))
	}
	registry := payment.NewRegistry(providers...)

	// HTTP surface: health endpoints + API routes on one server.
	h := api.NewHandler(catalogRepo, discountService, discountRepo, orderService, orderRepo, registry)
	mux := http.NewServeMux()
	healthSvc.RegisterRoutes(mux)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-User-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("shop-api", m),
			httpmiddleware.LogRequests(),
		),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	// Background expiry sweep: cancels and restocks orders whose payment
	// window lapsed. Idempotent, so running next to an external scheduler
	// hitting the internal endpoint is harmless.
	if cfg.Sweep.Enabled {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Sweep.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					n, err := orderService.ExpirePendingPayments(ctx)
					if err != nil {
						lg.Error("Expiry sweep failed", zap.Error(err))
						continue
					}
					if n > 0 {
						lg.Info("Expired pending payments", zap.Int("count", n))
					}
				}
			}
		})
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
