package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/storage/postgres"
	redisstore "github.com/xenking/storefront/internal/storage/redis"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	money, err := cfg.Money()
	if err != nil {
		return errors.Wrap(err, "pricing")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	rdb, err := redisstore.New(ctx, cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = rdb.Close() }()

	limiter := redisstore.NewLimiter(rdb)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, health.WithThresholds(2, 1))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second), health.WithThresholds(5, 1))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	otpRepo := postgres.NewOTPRepository(pool)
	contactRepo := postgres.NewContactRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Outbound notifications.
	sms := notify.NewSMS(cfg.SMS, nil)
	mailer := notify.NewMailer(cfg.Mail)
	tg := notify.NewTelegram(cfg.Telegram, nil)
	dispatcher := notify.NewDispatcher(userRepo, sms, mailer, tg, cfg.Notify.Timeout)
	lg.Info("Notification channels",
		zap.Bool("sms", sms.Enabled()),
		zap.Bool("email", mailer.Enabled()),
		zap.Bool("telegram", tg.Enabled()),
	)

	// Domain services.
	productService := product.NewService(productRepo)
	cartService := cart.NewService(cartRepo, productRepo, cart.Pricing{
		FreeShippingThreshold: money.FreeShippingThreshold,
		ShippingCharge:        money.ShippingCharge,
		MinimumOrder:          money.MinimumOrder,
	})
	orderService, err := order.NewService(orderRepo, cartService, dispatcher,
		order.Config{NumberPrefix: cfg.Orders.NumberPrefix, CODCharge: money.CODCharge},
		order.WithMeterProvider(m.MeterProvider()),
		order.WithTracerProvider(m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	authService := auth.NewService(userRepo, otpRepo,
		limiter,
		redisstore.NewSessions(rdb, []byte(cfg.Session.Secret), cfg.Session.TTL),
		sms,
		auth.Config{
			OTPLength:  cfg.OTP.Length,
			OTPExpiry:  cfg.OTP.Expiry,
			RateLimit:  cfg.OTP.RateLimit,
			RateWindow: cfg.OTP.RateWindow,
			Expose:     cfg.OTP.Expose,
		},
	)
	if cfg.OTP.Expose {
		lg.Warn("OTP codes are returned in API responses")
	}

	// HTTP handlers.
	h := handler.NewHandler(
		handler.Config{
			ImageBaseURL: cfg.ImageBaseURL,
			CookieName:   cfg.Session.CookieName,
			CookieSecure: cfg.Session.CookieSecure,
		},
		handler.Services{
			Products: productService,
			Cart:     cartService,
			Orders:   orderService,
			Auth:     authService,
			Contact:  contact.NewService(contactRepo, dispatcher),
			Keys:     auth.NewKeyVerifier(apikeyRepo, []byte(cfg.APIKeyPepper)),
		},
	)

	// Router: health endpoints + API routes on one server.
	router := h.Router()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Timing(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, rateLimitConfig(cfg.RateLimit, limiter)),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Routing(),
			httpmiddleware.Instrument("storefront-api", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
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
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// rateLimitConfig picks the Redis counter when instances share limits.
func rateLimitConfig(cfg RateLimitConfig, shared httpmiddleware.Counter) httpmiddleware.RateLimitConfig {
	out := httpmiddleware.RateLimitConfig{Max: cfg.Max, Window: cfg.Window}
	if cfg.Shared {
		out.Counter = shared
	}
	return out
}
