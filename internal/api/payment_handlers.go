package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
	"github.com/example/ec-checkout/internal/reconciliation"
)

// PaymentWebhook receives the processor's server-to-server confirmation.
// Anything the processor should not retry gets a 4xx; only infrastructure
// failures return 5xx so the processor delivers again.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "malformed", "invalid form body")
		return
	}

	res, err := h.reconciler.HandleWebhook(r.Context(), notificationFromForm(r.PostForm))
	if err != nil {
		h.respondWebhookErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// PaymentReturn handles the buyer's browser coming back from the processor,
// by GET query or POST form. Signed outcomes are applied; otherwise the
// order's current state is reported.
func (h *Handlers) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "malformed", "invalid form body")
		return
	}

	ret := reconciliation.Return{
		Reference: returnReference(r.Form),
		UserID:    middleware.GetUserID(r.Context()),
	}
	if r.Form.Get("sign") != "" {
		n := notificationFromForm(r.Form)
		ret.Notification = &n
	}

	res, err := h.reconciler.HandleReturn(r.Context(), ret)
	if err != nil {
		if errors.Is(err, order.ErrNotOwner) {
			h.respondErr(w, r, err)
			return
		}
		h.respondWebhookErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handlers) respondWebhookErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reconciliation.ErrInvalidSignature):
		respondError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
	case errors.Is(err, reconciliation.ErrUnknownOrder):
		respondError(w, http.StatusBadRequest, "unknown_order", "unknown reference")
	case errors.Is(err, reconciliation.ErrAmountMismatch):
		respondError(w, http.StatusBadRequest, "amount_mismatch", "amount does not match order")
	case errors.Is(err, payment.ErrMalformedNotification):
		respondError(w, http.StatusBadRequest, "malformed", err.Error())
	default:
		h.logger.Error("payment notification failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal", http.StatusText(http.StatusInternalServerError))
	}
}

func notificationFromForm(f url.Values) payment.Notification {
	return payment.Notification{
		MerchantID: f.Get("merchant_id"),
		Reference:  f.Get("reference_sale"),
		Amount:     f.Get("value"),
		Currency:   f.Get("currency"),
		Code:       f.Get("state_pol"),
		Signature:  f.Get("sign"),
	}
}

// returnReference accepts the local manual gateway's ref parameter as well
// as the processor's field names.
func returnReference(f url.Values) string {
	for _, k := range []string{"ref", "reference_sale", "referenceCode"} {
		if v := f.Get(k); v != "" {
			return v
		}
	}
	return ""
}
