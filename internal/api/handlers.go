package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/issue"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
	"github.com/example/ec-checkout/internal/query"
	"github.com/example/ec-checkout/internal/reconciliation"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Carts      *cart.Service
	Orders     *order.Service
	Checkout   *checkout.Workflow
	Queries    *query.Handler
	Reconciler *reconciliation.Reconciler
	Issues     issue.Lister
	DB         Pinger
	Logger     *slog.Logger
}

type Handlers struct {
	carts      *cart.Service
	orders     *order.Service
	checkout   *checkout.Workflow
	queries    *query.Handler
	reconciler *reconciliation.Reconciler
	issues     issue.Lister
	db         Pinger
	logger     *slog.Logger
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		carts:      d.Carts,
		orders:     d.Orders,
		checkout:   d.Checkout,
		queries:    d.Queries,
		reconciler: d.Reconciler,
		issues:     d.Issues,
		db:         d.DB,
		logger:     d.Logger.With("component", "api"),
	}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Admin Handlers

func (h *Handlers) ListIssues(w http.ResponseWriter, r *http.Request) {
	issues, err := h.issues.ListOpenIssues(r.Context(), 100)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if issues == nil {
		issues = []issue.Issue{}
	}
	respondJSON(w, http.StatusOK, issues)
}

// Helper functions

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondErr maps a domain error to its HTTP status. Unexpected errors are
// logged and reported without detail.
func (h *Handlers) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "user_id", middleware.GetUserID(r.Context()), "error", err)
		respondError(w, status, code, http.StatusText(status))
		return
	}
	respondError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, checkout.ErrProductUnavailable), errors.Is(err, cart.ErrProductUnavailable):
		return http.StatusBadRequest, "product_unavailable"
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInvalidProduct), errors.Is(err, payment.ErrUnknownMethod):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, cart.ErrNotOwner), errors.Is(err, order.ErrNotOwner):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, cart.ErrLineNotFound), errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, checkout.ErrOutOfStock), errors.Is(err, cart.ErrOutOfStock):
		return http.StatusConflict, "out_of_stock"
	case errors.Is(err, checkout.ErrCartChanged):
		return http.StatusConflict, "cart_changed"
	case errors.Is(err, checkout.ErrNotPayable),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrOrderAlreadyPaid),
		errors.Is(err, order.ErrOrderNotPaid),
		errors.Is(err, order.ErrOrderShipped),
		errors.Is(err, order.ErrOrderCancelled):
		return http.StatusConflict, "invalid_status"
	case errors.Is(err, checkout.ErrHandOffFailed):
		return http.StatusBadGateway, "handoff_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// buyer builds processor contact details from the caller's identity.
func buyer(r *http.Request) payment.Buyer {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return payment.Buyer{}
	}
	return payment.Buyer{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}
}

// isAdmin checks if the current user has admin role
func isAdmin(r *http.Request) bool {
	claims, ok := middleware.GetUserFromContext(r.Context())
	return ok && claims.IsAdmin()
}
