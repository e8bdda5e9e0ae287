package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/platewise/storefront-edge/api/routes"
	"github.com/platewise/storefront-edge/internal/auth"
	"github.com/platewise/storefront-edge/internal/cart"
	"github.com/platewise/storefront-edge/internal/checkout"
	"github.com/platewise/storefront-edge/internal/pricing"
	"github.com/platewise/storefront-edge/internal/reconcile"
	"github.com/platewise/storefront-edge/pkg/config"
	"github.com/platewise/storefront-edge/pkg/db"
	"github.com/platewise/storefront-edge/pkg/logger"
	"github.com/platewise/storefront-edge/pkg/metrics"
	"github.com/platewise/storefront-edge/pkg/migrate"
	"github.com/platewise/storefront-edge/pkg/redis"
	pkgsession "github.com/platewise/storefront-edge/pkg/session"
	"github.com/platewise/storefront-edge/pkg/upstream"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront-edge"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront-edge",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap cart cache", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	sessionManager, err := pkgsession.NewManager(redisClient, cfg.Session)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	upstreamMetrics := metrics.NewUpstreamMetrics(prometheus.DefaultRegisterer)
	upstreamClient, err := upstream.NewClient(cfg.Upstream, upstreamMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create upstream client", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart store", err)
		os.Exit(1)
	}

	reconciler, err := reconcile.NewService(cartService, upstreamClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart reconciler", err)
		os.Exit(1)
	}

	policy := pricing.NewPolicy(cfg.Pricing)

	checkoutService, err := checkout.NewService(reconciler, cartService, upstreamClient, policy, cfg.Checkout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(upstreamClient, sessionManager, reconciler, cartService, cfg.Session, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create auth bridge", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting storefront edge")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			upstreamClient,
			sessionManager,
			policy,
			reconciler,
			checkoutService,
			authService,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		logg.Error(ctx, "edge server stopped unexpectedly", err)
		os.Exit(1)
	case <-stopCtx.Done():
	}

	logg.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "stopping http server", err)
	}

	// Queued cart pushes drain before the process exits so a mutation
	// accepted right before the signal still reaches the commerce API.
	if err := reconciler.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "draining cart pushes", err)
	}

	if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
		logg.Error(ctx, "closing clients", err)
	}
}
