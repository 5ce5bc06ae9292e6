// Package handlers is the HTTP surface of the storefront: the session cart,
// checkout submission, payment callback, and read-only proxies for the
// catalog and order history.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bridal-dreams/storefront/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

const defaultRequestTimeout = 60 * time.Second

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	cart     RouteRegistrar
	checkout RouteRegistrar
	payments RouteRegistrar
	catalog  RouteRegistrar
	orders   RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// WithMiddlewares appends shared middleware applied to every route.
func WithMiddlewares(mws ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mws...)
	}
}

// WithHealth overrides the probe handlers.
func WithHealth(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

// WithCartRoutes mounts the cart endpoints under /api/cart.
func WithCartRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.cart = registrar }
}

// WithCheckoutRoutes mounts the checkout endpoints under /api/checkout.
func WithCheckoutRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.checkout = registrar }
}

// WithPaymentRoutes mounts the payment endpoints under /api/payments.
func WithPaymentRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.payments = registrar }
}

// WithCatalogRoutes mounts the catalog endpoints under /api/products.
func WithCatalogRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.catalog = registrar }
}

// WithOrderRoutes mounts the order history endpoints under /api/orders/user.
func WithOrderRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders = registrar }
}

// NewRouter constructs the chi router with shared middleware and the
// storefront route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers(nil)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route("/api", func(api chi.Router) {
		// Checkout submissions park until the gateway callback resolves
		// them, so that group runs without a request timeout.
		mount := func(path string, registrar RouteRegistrar, timeout time.Duration) {
			if registrar == nil {
				return
			}
			api.Route(path, func(group chi.Router) {
				if timeout > 0 {
					group.Use(middleware.Timeout(timeout))
				}
				registrar(group)
			})
		}

		mount("/cart", cfg.cart, defaultRequestTimeout)
		mount("/checkout", cfg.checkout, 0)
		mount("/payments", cfg.payments, defaultRequestTimeout)
		mount("/products", cfg.catalog, defaultRequestTimeout)
		mount("/orders/user", cfg.orders, defaultRequestTimeout)
	})

	return r
}
