package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/api"
	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/events"
	"storefront/internal/idempotency"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/order"
	"storefront/internal/product"
	"storefront/internal/user"

	"go.uber.org/zap"
)

const (
	shutdownTimeout = 10 * time.Second
	eventBuffer     = 256
)

// Swapped in tests.
var (
	initDBFunc      = db.InitDB
	startServerFunc = serve
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.L().Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	if err := cfg.Validate(); err != nil {
		return err
	}

	database := initDBFunc(cfg)
	defer database.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, eventBuffer)
		pubCtx, stopPublisher := context.WithCancel(context.WithoutCancel(ctx))
		kp.Start(pubCtx)
		// requests still in flight during shutdown may publish
		defer func() {
			stopPublisher()
			kp.WaitClosed()
		}()
		publisher = kp
		log.Info("order events enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	var idem api.Idempotency
	if cfg.RedisAddr != "" {
		rdb := idempotency.NewClient(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, checkout retries are not deduplicated until it recovers",
				zap.String("addr", cfg.RedisAddr),
				zap.Error(err),
			)
		}
		idem = idempotency.NewStore(rdb, idempotency.DefaultTTL)
	}

	h := newHandler(ctx, cfg, database, publisher)
	h.Idempotency = idem

	if _, err := h.Users.EnsureDefaultAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("http server listening", zap.String("addr", srv.Addr))
	return startServerFunc(ctx, srv)
}

// newHandler wires repositories and services over database.
func newHandler(ctx context.Context, cfg *config.Config, database *sql.DB, publisher events.Publisher) *api.Handler {
	m := metrics.New(nil)

	productSvc := product.NewService(product.NewRepository(database), nil)
	userSvc := user.NewService(user.NewRepository(database))
	orderSvc := order.NewService(order.NewRepository(database), productSvc, publisher, m)
	orchestrator := checkout.NewOrchestrator(productSvc, orderSvc, m, checkout.Config{
		ReservationTimeout: cfg.ReservationTimeout,
	})

	return &api.Handler{
		Users:    userSvc,
		Products: productSvc,
		Carts:    cart.NewStore(),
		Cart:     cart.NewService(productSvc),
		Checkout: orchestrator,
		Orders:   orderSvc,
		Metrics:  m,
		Limiter:  middleware.NewRateLimiter(ctx),

		SecureCookies: cfg.AppEnv == "production",
	}
}

// serve blocks until ctx is done, then drains connections.
func serve(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
