package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	paymentService payments.Service,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	// A nil *redis.Client must not reach the middleware as a non-nil interface.
	var (
		idempotencyStore redis.IdempotencyStore
		rateLimitStore   middleware.RateLimitStore
		redisPinger      db.Pinger
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		rateLimitStore = redisClient
		redisPinger = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "postgres", Pinger: dbP},
			controllers.ReadinessCheck{Name: "redis", Pinger: redisPinger},
		))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(cfg.JWT, logg))
		r.Use(middleware.CartToken(cfg.CartToken, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.CartRateLimit(cfg.RateLimit, rateLimitStore, logg))
			r.Get("/", controllers.CartFetch(cartService, logg))
			r.Get("/count", controllers.CartCount(cartService, logg))
			r.Post("/items", controllers.CartAdd(cartService, cfg.CartToken, logg))
			r.Post("/items/quantity", controllers.CartUpdateQuantity(cartService, cfg.CartToken, logg))
			r.Post("/items/remove", controllers.CartRemove(cartService, cfg.CartToken, logg))
			r.Post("/items/variant", controllers.CartUpdateVariant(cartService, cfg.CartToken, logg))
		})

		r.Get("/checkout", controllers.CheckoutQuote(checkoutService, logg))
		r.Post("/checkout", controllers.CheckoutSubmit(paymentService, checkoutService, cfg.CartToken, cfg.Checkout, logg))
		r.Route("/payments/{gateway}", func(r chi.Router) {
			r.Post("/initiate", controllers.PaymentInitiate(paymentService, checkoutService, logg))
			// Gateways redirect the browser here; the pending checkout row carries the owner.
			r.Get("/return", controllers.PaymentReturn(paymentService, cfg.Checkout, cfg.CartToken, logg))
			r.Get("/cancel", controllers.PaymentCancel(paymentService, cfg.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUser(logg))
				r.Get("/", ordercontrollers.List(ordersService, logg))
				r.Post("/{orderId}/cancel", ordercontrollers.CancelOrder(ordersService, logg))
			})
		})
	})

	return r
}
