package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/payment"
)

// IdempotencyHeader lets a client retry a checkout without placing a
// second order.
const IdempotencyHeader = "Idempotency-Key"

type payRequest struct {
	Method string `json:"method"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type handOffFailure struct {
	errorResponse
	Result *checkout.Result `json:"result"`
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	method, ok := h.decodeMethod(w, r)
	if !ok {
		return
	}

	res, err := h.checkout.Checkout(r.Context(), checkout.Request{
		UserID:         middleware.GetUserID(r.Context()),
		Buyer:          buyer(r),
		Method:         method,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.respondCheckoutErr(w, r, res, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, res)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queries.ListOrdersByUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// GetOrder returns an order to its owner; admins can read any order.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.queries.GetOrder(r.Context(), chi.URLParam(r, "orderID"), middleware.GetUserID(r.Context()), isAdmin(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// CancelOrder cancels a pending order and releases its stock. Repeating the
// call on a cancelled order succeeds.
func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	orderID := chi.URLParam(r, "orderID")
	if !isAdmin(r) {
		if _, err := h.orders.GetForUser(r.Context(), middleware.GetUserID(r.Context()), orderID); err != nil {
			h.respondErr(w, r, err)
			return
		}
	}

	if _, err := h.orders.Cancel(r.Context(), orderID, req.Reason); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.GetOrder(w, r)
}

// PayOrder starts a new payment hand-off for a pending order.
func (h *Handlers) PayOrder(w http.ResponseWriter, r *http.Request) {
	method, ok := h.decodeMethod(w, r)
	if !ok {
		return
	}

	res, err := h.checkout.RetryPayment(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "orderID"), buyer(r), method)
	if err != nil {
		h.respondCheckoutErr(w, r, res, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) ShipOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Ship(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.GetOrder(w, r)
}

// decodeMethod reads the optional payment method from the body. An empty
// body selects the gateway.
func (h *Handlers) decodeMethod(w http.ResponseWriter, r *http.Request) (payment.Method, bool) {
	var req payRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return "", false
	}
	method, err := payment.ParseMethod(req.Method)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return "", false
	}
	return method, true
}

// respondCheckoutErr reports a failed hand-off together with the pending
// order so the client can retry payment.
func (h *Handlers) respondCheckoutErr(w http.ResponseWriter, r *http.Request, res *checkout.Result, err error) {
	if errors.Is(err, checkout.ErrHandOffFailed) && res != nil && res.Order != nil {
		h.logger.Warn("payment hand-off failed", "order_id", res.Order.ID, "error", err)
		respondJSON(w, http.StatusBadGateway, handOffFailure{
			errorResponse: errorResponse{Error: "payment processor unavailable, retry payment for this order", Code: "handoff_failed"},
			Result:        res,
		})
		return
	}
	h.respondErr(w, r, err)
}
