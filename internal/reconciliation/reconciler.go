package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/domain/issue"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/notification"
)

var (
	ErrInvalidSignature = errors.New("invalid payment notification signature")
	ErrUnknownOrder     = errors.New("unknown order reference")
	ErrAmountMismatch   = errors.New("notified amount does not match order")
	ErrInfrastructure   = errors.New("infrastructure failure")
)

// Outcome reports what reconciliation did with a confirmation.
type Outcome string

const (
	OutcomePaid             Outcome = "paid"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeAlreadyFinalized Outcome = "already_finalized"
	OutcomePending          Outcome = "pending"
	OutcomeAwaitingManual   Outcome = "awaiting_manual_confirmation"
	OutcomeLateApproval     Outcome = "late_approval"
	OutcomeStatusReported   Outcome = "status_reported"
)

type Result struct {
	OrderID     string       `json:"order_id"`
	Reference   string       `json:"reference"`
	Outcome     Outcome      `json:"outcome"`
	OrderStatus order.Status `json:"order_status"`
}

type Config struct {
	MerchantID string
	Currency   string
	Signer     payment.Signer
	PendingTTL time.Duration
}

type Deps struct {
	Orders   order.Repository
	OrderSvc *order.Service
	Payments payment.Repository
	Issues   issue.Recorder
	Notifier notification.Sink
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Reconciler applies external payment outcomes to orders exactly once. The
// order status is the idempotency key: every change is a compare-and-set
// from pending, and only the caller that wins it performs side effects.
type Reconciler struct {
	cfg      Config
	orders   order.Repository
	orderSvc *order.Service
	payments payment.Repository
	issues   issue.Recorder
	notifier notification.Sink
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(cfg Config, d Deps) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		orders:   d.Orders,
		orderSvc: d.OrderSvc,
		payments: d.Payments,
		issues:   d.Issues,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		logger:   d.Logger.With("component", "reconciliation"),
	}
}

// HandleWebhook verifies and applies a processor notification. No field of n
// is trusted before the signature has been checked.
func (r *Reconciler) HandleWebhook(ctx context.Context, n payment.Notification) (*Result, error) {
	res, err := r.handleSigned(ctx, n, "webhook")
	r.metrics.WebhookResult(resultLabel(res, err))
	return res, err
}

func (r *Reconciler) handleSigned(ctx context.Context, n payment.Notification, source string) (*Result, error) {
	p, err := n.Parse()
	if err != nil {
		r.logger.Warn("malformed payment notification", "source", source, "error", err)
		return nil, err
	}
	if !p.Verify(r.cfg.Signer) {
		r.logger.Warn("payment notification signature mismatch", "source", source, "reference", p.Reference)
		return nil, ErrInvalidSignature
	}
	if p.MerchantID != r.cfg.MerchantID {
		r.logger.Warn("payment notification for another merchant", "source", source, "merchant_id", p.MerchantID)
		return nil, fmt.Errorf("%w: merchant %s", ErrInvalidSignature, p.MerchantID)
	}

	a, o, err := r.resolve(ctx, p.Reference)
	if err != nil {
		return nil, err
	}

	if !p.Value.Equal(o.Total.Round(2)) || !strings.EqualFold(p.Currency, r.cfg.Currency) {
		issue.Record(ctx, r.issues, r.logger, issue.Issue{
			OrderID: o.ID,
			Kind:    issue.KindAmountMismatch,
			Detail: map[string]any{
				"reference":         p.Reference,
				"notified_amount":   p.Amount,
				"notified_currency": p.Currency,
				"order_total":       o.Total.StringFixed(2),
				"currency":          r.cfg.Currency,
				"state":             p.Code,
				"source":            source,
			},
		})
		return nil, ErrAmountMismatch
	}

	return r.apply(ctx, o, a, p.Outcome, p.Code, source)
}

// resolve maps a correlation reference to its attempt and order.
func (r *Reconciler) resolve(ctx context.Context, reference string) (*payment.Attempt, *order.Order, error) {
	a, err := r.payments.GetAttemptByReference(ctx, reference)
	if errors.Is(err, payment.ErrAttemptNotFound) {
		r.logger.Warn("payment notification for unknown reference", "reference", reference)
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownOrder, reference)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load attempt: %w", ErrInfrastructure, err)
	}

	o, err := r.orders.GetOrder(ctx, a.OrderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownOrder, reference)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load order: %w", ErrInfrastructure, err)
	}
	return a, o, nil
}

func (r *Reconciler) apply(ctx context.Context, o *order.Order, a *payment.Attempt, outcome payment.Outcome, code, source string) (*Result, error) {
	log := r.logger.With("order_id", o.ID, "reference", a.Reference, "outcome", outcome, "source", source)
	switch {
	case outcome == payment.OutcomeApproved:
		return r.approve(ctx, log, o, a, code)
	case outcome.Failed():
		return r.fail(ctx, log, o, a, outcome, code)
	default:
		log.Info("payment still pending at processor")
		return result(o, a, OutcomePending, o.Status), nil
	}
}

func (r *Reconciler) approve(ctx context.Context, log *slog.Logger, o *order.Order, a *payment.Attempt, code string) (*Result, error) {
	if o.Status == order.StatusPending {
		ok, err := r.orders.TransitionOrder(ctx, o.ID, order.StatusPending, order.StatusPaid)
		if err != nil {
			return nil, fmt.Errorf("%w: mark paid: %w", ErrInfrastructure, err)
		}
		if ok {
			r.settle(ctx, log, a, payment.AttemptConfirmed, code)
			log.Info("order paid")
			r.notify(ctx, log, o, a, notification.KindOrderPaid,
				fmt.Sprintf("Payment received for order %s. Thank you for your purchase.", o.ID))
			return result(o, a, OutcomePaid, order.StatusPaid), nil
		}
		if o, err = r.orders.GetOrder(ctx, o.ID); err != nil {
			return nil, fmt.Errorf("%w: reload order: %w", ErrInfrastructure, err)
		}
	}

	switch o.Status {
	case order.StatusPaid, order.StatusShipped, order.StatusRefunded:
		log.Info("approval replayed for finalized order", "status", o.Status)
		return result(o, a, OutcomeAlreadyFinalized, o.Status), nil
	case order.StatusCancelled:
		// money was taken for an order whose stock has been released
		if r.settle(ctx, log, a, payment.AttemptConfirmed, code) {
			issue.Record(ctx, r.issues, log, issue.Issue{
				OrderID: o.ID,
				Kind:    issue.KindLateApproval,
				Detail: map[string]any{
					"reference": a.Reference,
					"state":     code,
				},
			})
		}
		return result(o, a, OutcomeLateApproval, o.Status), nil
	default:
		return nil, fmt.Errorf("%w: order %s still %s after lost transition", ErrInfrastructure, o.ID, o.Status)
	}
}

func (r *Reconciler) fail(ctx context.Context, log *slog.Logger, o *order.Order, a *payment.Attempt, outcome payment.Outcome, code string) (*Result, error) {
	if o.Status != order.StatusPending && o.Status != order.StatusCancelled {
		r.settle(ctx, log, a, payment.AttemptFailed, code)
		log.Info("failure reported for finalized order", "status", o.Status)
		return result(o, a, OutcomeAlreadyFinalized, o.Status), nil
	}

	if o.Status == order.StatusPending {
		open, err := r.otherOpenAttempt(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("%w: list attempts: %w", ErrInfrastructure, err)
		}
		if open != nil {
			// the buyer can still pay through the open attempt
			r.settle(ctx, log, a, payment.AttemptFailed, code)
			log.Info("failed attempt superseded, order kept pending", "open_reference", open.Reference)
			return result(o, a, OutcomePending, o.Status), nil
		}
	}

	cancelled, err := r.orderSvc.Cancel(ctx, o.ID, "payment "+string(outcome))
	if err != nil {
		if isTransitionErr(err) {
			current, gerr := r.orders.GetOrder(ctx, o.ID)
			if gerr != nil {
				return nil, fmt.Errorf("%w: reload order: %w", ErrInfrastructure, gerr)
			}
			r.settle(ctx, log, a, payment.AttemptFailed, code)
			return result(current, a, OutcomeAlreadyFinalized, current.Status), nil
		}
		return nil, fmt.Errorf("%w: cancel order: %w", ErrInfrastructure, err)
	}

	r.settle(ctx, log, a, payment.AttemptFailed, code)
	if !cancelled {
		log.Info("failure replayed for cancelled order")
		return result(o, a, OutcomeAlreadyFinalized, order.StatusCancelled), nil
	}

	log.Info("order cancelled after failed payment")
	r.notify(ctx, log, o, a, notification.KindOrderCancelled,
		fmt.Sprintf("Payment for order %s was %s. The order has been cancelled.", o.ID, outcome))
	return result(o, a, OutcomeCancelled, order.StatusCancelled), nil
}

// otherOpenAttempt returns the most recent unsettled attempt on a's order
// other than a itself, or nil.
func (r *Reconciler) otherOpenAttempt(ctx context.Context, a *payment.Attempt) (*payment.Attempt, error) {
	attempts, err := r.payments.ListAttemptsByOrder(ctx, a.OrderID)
	if err != nil {
		return nil, err
	}
	for i := len(attempts) - 1; i >= 0; i-- {
		if b := attempts[i]; b.Reference != a.Reference && b.Status == payment.AttemptCreated {
			return b, nil
		}
	}
	return nil, nil
}

// settle records the final state of an attempt. It reports whether this call
// performed the settlement.
func (r *Reconciler) settle(ctx context.Context, log *slog.Logger, a *payment.Attempt, status payment.AttemptStatus, code string) bool {
	ok, err := r.payments.SettleAttempt(ctx, a.Reference, status, code)
	if err != nil {
		log.Error("failed to settle payment attempt", "status", status, "error", err)
		return false
	}
	return ok
}

func (r *Reconciler) notify(ctx context.Context, log *slog.Logger, o *order.Order, a *payment.Attempt, kind notification.Kind, text string) {
	if r.notifier == nil {
		return
	}
	m := notification.NewMessage(o.UserID, o.ID, kind, text)
	if a != nil {
		m.Email = a.BuyerEmail
	}
	if err := r.notifier.Notify(ctx, m); err != nil {
		log.Error("failed to notify user", "kind", kind, "error", err)
	}
}

func result(o *order.Order, a *payment.Attempt, outcome Outcome, status order.Status) *Result {
	res := &Result{OrderID: o.ID, Outcome: outcome, OrderStatus: status}
	if a != nil {
		res.Reference = a.Reference
	}
	return res
}

func resultLabel(res *Result, err error) string {
	switch {
	case err == nil:
		return string(res.Outcome)
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrUnknownOrder):
		return "unknown_order"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, payment.ErrMalformedNotification):
		return "malformed"
	default:
		return "error"
	}
}
