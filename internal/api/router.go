package api

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/cart"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/order"
	"storefront/internal/product"
	"storefront/internal/user"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 15 * time.Second

type Checkouter interface {
	Checkout(ctx context.Context, userID uint, c *cart.Cart) (*order.Order, error)
}

// Idempotency guards POST /checkout against client retries.
type Idempotency interface {
	Begin(ctx context.Context, userID uint, key string) (uint, bool, error)
	Complete(ctx context.Context, userID uint, key string, orderID uint) error
	Abort(ctx context.Context, userID uint, key string) error
}

type Handler struct {
	Users    user.Service
	Products product.Service
	Carts    *cart.Store
	Cart     cart.Service
	Checkout Checkouter
	Orders   order.Service

	// Optional collaborators.
	Idempotency Idempotency
	Metrics     *metrics.Metrics
	Limiter     *middleware.RateLimiter

	// SecureCookies marks the access_token cookie Secure (HTTPS only).
	SecureCookies bool
}

func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Instrument(h.Metrics))
	r.Use(middleware.AuthMiddleware)
	if h.Limiter != nil {
		r.Use(h.Limiter.Middleware)
	}
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.With(middleware.RequireAuth).Post("/logout", h.logout)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/search", h.searchProducts)
		r.Get("/{id}", h.getProduct)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Get("/cart", h.viewCart)
		r.Post("/cart/items", h.addToCart)
		r.Delete("/cart/items/{productID}", h.removeFromCart)
		r.Post("/checkout", h.checkout)
		r.Get("/orders", h.myOrders)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin)

		r.Post("/products", h.createProduct)
		r.Patch("/products/{id}", h.updateProduct)
		r.Delete("/products/{id}", h.deleteProduct)
		r.Post("/products/{id}/stock", h.manageStock)

		r.Get("/orders", h.allOrders)
		r.Patch("/orders/{id}/status", h.setOrderStatus)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Delete("/orders/{id}", h.deleteOrder)

		r.Get("/users", h.listUsers)
		r.Post("/users/{id}/promote", h.promoteUser)
	})

	return r
}
