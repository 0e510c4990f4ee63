package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/metrics"
)

type RouterConfig struct {
	Tokens         middleware.TokenValidator
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

func NewRouter(handlers *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", handlers.Health)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	// Processor callbacks
	r.Post("/webhook/payment", handlers.PaymentWebhook)
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuthMiddleware(cfg.Tokens))
		r.Get("/checkout/return", handlers.PaymentReturn)
		r.Post("/checkout/return", handlers.PaymentReturn)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.Tokens))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", handlers.GetCart)
			r.Post("/lines", handlers.AddCartLine)
			r.Patch("/lines/{lineID}", handlers.UpdateCartLine)
			r.Delete("/lines/{lineID}", handlers.RemoveCartLine)
		})

		r.Post("/checkout", handlers.Checkout)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", handlers.GetOrders)
			r.Get("/{orderID}", handlers.GetOrder)
			r.Post("/{orderID}/cancel", handlers.CancelOrder)
			r.Post("/{orderID}/pay", handlers.PayOrder)
			r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/{orderID}/ship", handlers.ShipOrder)
		})

		r.With(middleware.RequireRole(auth.RoleAdmin)).Get("/admin/issues", handlers.ListIssues)
	})

	return r
}
