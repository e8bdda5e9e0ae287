package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platewise/storefront-edge/api/controllers"
	"github.com/platewise/storefront-edge/api/middleware"
	"github.com/platewise/storefront-edge/internal/auth"
	"github.com/platewise/storefront-edge/internal/checkout"
	"github.com/platewise/storefront-edge/internal/pricing"
	"github.com/platewise/storefront-edge/internal/reconcile"
	"github.com/platewise/storefront-edge/pkg/config"
	"github.com/platewise/storefront-edge/pkg/db"
	"github.com/platewise/storefront-edge/pkg/logger"
	"github.com/platewise/storefront-edge/pkg/redis"
	pkgsession "github.com/platewise/storefront-edge/pkg/session"
	"github.com/platewise/storefront-edge/pkg/upstream"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	upstreamClient *upstream.Client,
	sessions pkgsession.UpstreamTokenReader,
	policy pricing.Policy,
	cartService reconcile.Service,
	checkoutService checkout.Service,
	authService auth.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, controllers.ReadinessDeps{
			DB:       dbP,
			Redis:    redisClient,
			Upstream: upstreamClient,
		}, logg))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Session(cfg.Session, sessions, logg),
			middleware.Idempotency(redisClient, logg),
		)

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, cfg.Session, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(authService, cfg.Session, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/google", controllers.AuthGoogle(authService, cfg.Session, logg))
			r.Post("/logout", controllers.AuthLogout(authService, cfg.Session, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(checkoutService, logg))
			r.Post("/add", controllers.CartAdd(cartService, policy, logg))
			r.Patch("/update", controllers.CartUpdateQuantity(cartService, policy, logg))
			r.Delete("/remove", controllers.CartRemove(cartService, policy, logg))
			r.Delete("/clear", controllers.CartClear(cartService, policy, logg))
			r.Post("/discount", controllers.CartApplyDiscount(cartService, policy, logg))
			r.Delete("/discount", controllers.CartRemoveDiscount(cartService, policy, logg))
		})

		r.Post("/customer/orders/from-cart", controllers.OrderCreate(checkoutService, logg))
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(checkoutService, logg))
			r.Post("/{orderId}/cancel", controllers.OrderCancel(checkoutService, logg))
		})
	})

	return r
}
