// Package app wires the storefront together and runs the HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shopprime/storefront/internal/domain/auth"
	"github.com/shopprime/storefront/internal/domain/cart"
	"github.com/shopprime/storefront/internal/domain/coupon"
	"github.com/shopprime/storefront/internal/domain/order"
	"github.com/shopprime/storefront/internal/domain/review"
	"github.com/shopprime/storefront/internal/domain/wishlist"
	"github.com/shopprime/storefront/internal/events"
	"github.com/shopprime/storefront/internal/handler"
	"github.com/shopprime/storefront/internal/lock"
	"github.com/shopprime/storefront/pkg/health"
	"github.com/shopprime/storefront/pkg/httpmiddleware"
)

// Telemetry provides the OpenTelemetry providers; *app.Telemetry from the
// go-faster SDK implements it.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	store, err := OpenStorage(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	healthSvc := health.New()
	healthSvc.AddReadinessCheck(cfg.Storage, 5*time.Second, store.Ping)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Checkout lock: shared through Redis when configured.
	var locks order.Locker = lock.NewKeyedMutex()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
		locks = lock.NewRedis(rdb, lock.RedisOptions{Prefix: "shop:lock:", TTL: cfg.Redis.LockTTL})
		lg.Info("Using redis checkout lock", zap.String("redis", cfg.Redis.Addr))
	}

	// Order events: Kafka when brokers are configured.
	var publisher order.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p := events.NewPublisher(events.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer func() {
			if err := p.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		}()
		publisher = p
		lg.Info("Publishing order events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	threshold, charge, err := cfg.Checkout.amounts()
	if err != nil {
		return err
	}

	// Domain services.
	ledger := coupon.NewLedger(store.Coupons)
	orderService, err := order.NewService(order.Config{
		FreeDeliveryThreshold: decimal.NewNullDecimal(threshold),
		DeliveryCharge:        decimal.NewNullDecimal(charge),
		DefaultCountry:        cfg.Checkout.DefaultCountry,
		TracerProvider:        m.TracerProvider(),
		MeterProvider:         m.MeterProvider(),
	}, order.Deps{
		Products: store.Products,
		Coupons:  ledger,
		Carts:    store.Carts,
		Orders:   store.Orders,
		Tx:       store.Tx,
		Locks:    locks,
		Events:   publisher,
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.New(handler.Config{
		JWTSecret:       []byte(cfg.Auth.JWTSecret),
		CheckoutTimeout: cfg.Checkout.Timeout,
	}, handler.Deps{
		Orders:   orderService,
		Carts:    cart.NewService(store.Carts, store.Products, locks),
		Coupons:  ledger,
		Catalog:  store.Products,
		CouponDB: store.Coupons,
		Reviews:  review.NewService(store.Reviews, store.Products),
		Wishlist: wishlist.NewService(store.Wishlist, store.Products),
		APIKeys:  auth.NewVerifier(store.APIKeys, []byte(cfg.Auth.APIKeyPepper)),
	})

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", handler.NewRouter(h))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Checkout.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument("storefront-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
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
