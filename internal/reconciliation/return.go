package reconciliation

import (
	"context"
	"fmt"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
)

// Return is the buyer's browser coming back from the processor. A signed
// outcome on the return is applied exactly like a webhook; without one the
// call only reports the order's state.
type Return struct {
	Reference    string
	UserID       string
	Notification *payment.Notification
}

func (r *Reconciler) HandleReturn(ctx context.Context, ret Return) (*Result, error) {
	if n := ret.Notification; n != nil && n.Signature != "" {
		if n.Reference == "" {
			n.Reference = ret.Reference
		}
		return r.handleSigned(ctx, *n, "return")
	}

	if ret.Reference == "" {
		return nil, fmt.Errorf("%w: missing reference", ErrUnknownOrder)
	}
	a, o, err := r.resolve(ctx, ret.Reference)
	if err != nil {
		return nil, err
	}
	if ret.UserID != "" && o.UserID != ret.UserID {
		return nil, order.ErrNotOwner
	}

	switch {
	case o.Status == order.StatusPending && a.Method.Manual():
		// never auto-paid; staff confirm these out of band
		return result(o, a, OutcomeAwaitingManual, o.Status), nil
	case o.Status == order.StatusPending:
		return result(o, a, OutcomePending, o.Status), nil
	default:
		return result(o, a, OutcomeStatusReported, o.Status), nil
	}
}
