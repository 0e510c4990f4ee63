package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
	"github.com/example/ec-checkout/internal/notification"
)

const DefaultPendingTTL = 2 * time.Hour

type SweepReport struct {
	Scanned   int `json:"scanned"`
	Cancelled int `json:"cancelled"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// SweepPendingOrders cancels orders that have waited for payment longer than
// the configured TTL and gives their stock back. Orders whose latest attempt
// uses a manual method are left alone. Per-order failures are collected and the sweep
// continues.
func (r *Reconciler) SweepPendingOrders(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport

	ttl := r.cfg.PendingTTL
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	stale, err := r.orders.ListPendingOrders(ctx, now.Add(-ttl))
	if err != nil {
		return report, fmt.Errorf("%w: list pending orders: %w", ErrInfrastructure, err)
	}

	var errs []error
	for _, o := range stale {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		report.Scanned++

		attempts, err := r.payments.ListAttemptsByOrder(ctx, o.ID)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}
		if manual(attempts) {
			report.Skipped++
			continue
		}

		cancelled, err := r.orderSvc.Cancel(ctx, o.ID, "payment timeout")
		if err != nil {
			if isTransitionErr(err) {
				// confirmed meanwhile
				report.Skipped++
				continue
			}
			report.Failed++
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}
		if !cancelled {
			report.Skipped++
			continue
		}

		report.Cancelled++
		r.metrics.Swept()
		log := r.logger.With("order_id", o.ID)
		// attempts stay open: a late approval must still be matched and flagged
		var last *payment.Attempt
		if len(attempts) > 0 {
			last = attempts[len(attempts)-1]
		}
		log.Info("stale pending order cancelled", "age", now.Sub(o.CreatedAt).String())
		r.notify(ctx, log, o, last, notification.KindOrderExpired,
			fmt.Sprintf("Order %s was cancelled because payment was not completed in time.", o.ID))
	}

	r.logger.Info("pending order sweep finished",
		"scanned", report.Scanned, "cancelled", report.Cancelled, "skipped", report.Skipped, "failed", report.Failed)
	return report, errors.Join(errs...)
}

// manual reports whether the buyer's latest choice was a manual method.
func manual(attempts []*payment.Attempt) bool {
	return len(attempts) > 0 && attempts[len(attempts)-1].Method.Manual()
}

func isTransitionErr(err error) bool {
	return errors.Is(err, order.ErrOrderAlreadyPaid) ||
		errors.Is(err, order.ErrOrderShipped) ||
		errors.Is(err, order.ErrInvalidStatus)
}
