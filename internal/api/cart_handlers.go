package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/ec-checkout/internal/api/middleware"
)

type addLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateLineRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.queries.GetCart(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) AddCartLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	line, err := h.carts.AddLine(r.Context(), middleware.GetUserID(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, line)
}

// UpdateCartLine sets a line's quantity; zero or less removes the line.
func (h *Handlers) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	var req updateLineRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.carts.UpdateLine(r.Context(), userID, chi.URLParam(r, "lineID"), req.Quantity); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.GetCart(w, r)
}

func (h *Handlers) RemoveCartLine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.carts.RemoveLine(r.Context(), userID, chi.URLParam(r, "lineID")); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
