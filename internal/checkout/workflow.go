package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/issue"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/metrics"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrProductUnavailable = errors.New("product is no longer available")
	ErrOutOfStock         = errors.New("not enough stock")
	ErrCartChanged        = errors.New("cart changed during checkout")
	ErrHandOffFailed      = errors.New("payment hand-off failed")
	ErrNotPayable         = errors.New("order is not awaiting payment")
	ErrInfrastructure     = errors.New("infrastructure failure")
)

// OrderPlacer writes an order with its lines and deletes the cart it came
// from in one transaction. It fails with cart.ErrCartChanged when the cart
// row no longer has cartVersion, and with order.ErrDuplicateCheckout when
// the user already has an order for the same checkout key.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, o *order.Order, cartID string, cartVersion int) error
}

// Gateways selects the hand-off used for each payment method.
type Gateways struct {
	Online payment.Gateway
	Manual payment.Gateway
}

func (g Gateways) For(m payment.Method) payment.Gateway {
	if m.Manual() {
		return g.Manual
	}
	return g.Online
}

type Deps struct {
	Carts    cart.Repository
	Catalog  product.Catalog
	Ledger   inventory.Ledger
	Orders   order.Repository
	Placer   OrderPlacer
	Payments payment.Repository
	Gateways Gateways
	Issues   issue.Recorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Currency string
}

// Workflow turns a user's cart into a pending order with its inventory
// committed, then hands the buyer off to the payment processor.
type Workflow struct {
	carts    cart.Repository
	catalog  product.Catalog
	ledger   inventory.Ledger
	orders   order.Repository
	placer   OrderPlacer
	payments payment.Repository
	gateways Gateways
	issues   issue.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	currency string
}

func NewWorkflow(d Deps) *Workflow {
	return &Workflow{
		carts:    d.Carts,
		catalog:  d.Catalog,
		ledger:   d.Ledger,
		orders:   d.Orders,
		placer:   d.Placer,
		payments: d.Payments,
		gateways: d.Gateways,
		issues:   d.Issues,
		metrics:  d.Metrics,
		logger:   d.Logger.With("component", "checkout"),
		currency: d.Currency,
	}
}

type Request struct {
	UserID         string
	Buyer          payment.Buyer
	Method         payment.Method
	IdempotencyKey string
}

// Result describes the order produced by a checkout. On ErrHandOffFailed the
// order is still returned and RedirectURL is empty.
type Result struct {
	Order       *order.Order     `json:"order"`
	Attempt     *payment.Attempt `json:"payment,omitempty"`
	RedirectURL string           `json:"redirect_url,omitempty"`
	Replayed    bool             `json:"replayed"`
}

// Checkout runs the workflow for req.UserID's cart. Steps up to and
// including the order write are all-or-nothing: on any failure every stock
// decrement taken by this call is given back before the error is returned.
func (w *Workflow) Checkout(ctx context.Context, req Request) (*Result, error) {
	run := &attempt{id: uuid.New().String(), state: StateStarted}
	run.logger = w.logger.With("checkout_id", run.id, "user_id", req.UserID)

	res, err := w.checkout(ctx, run, req)
	switch {
	case err == nil && res.Replayed:
		w.metrics.CheckoutResult("replayed")
	case err == nil:
		w.metrics.CheckoutResult("success")
	default:
		w.metrics.CheckoutResult(resultLabel(err))
	}
	return res, err
}

func (w *Workflow) checkout(ctx context.Context, run *attempt, req Request) (*Result, error) {
	if req.IdempotencyKey != "" {
		existing, err := w.orders.FindOrderByCheckoutKey(ctx, req.UserID, req.IdempotencyKey)
		switch {
		case err == nil:
			run.logger.Info("checkout replayed", "order_id", existing.ID)
			return w.replay(ctx, existing)
		case !errors.Is(err, order.ErrOrderNotFound):
			return nil, run.abort(fmt.Errorf("%w: lookup checkout key: %w", ErrInfrastructure, err))
		}
	}

	c, err := w.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, run.abort(fmt.Errorf("%w: load cart: %w", ErrInfrastructure, err))
	}
	if c.IsEmpty() {
		return nil, run.abort(ErrEmptyCart)
	}

	lines, err := w.price(ctx, c)
	if err != nil {
		return nil, run.abort(err)
	}
	o, err := order.New(req.UserID, req.IdempotencyKey, lines)
	if err != nil {
		return nil, run.abort(err)
	}
	run.advance(StateLinesValidated)

	held, err := w.commit(ctx, run, o)
	if err != nil {
		return nil, run.abort(err)
	}
	run.advance(StateInventoryCommitted)

	if err := w.placer.PlaceOrder(ctx, o, c.ID, c.Version); err != nil {
		w.compensate(ctx, run, o.ID, held)
		switch {
		case errors.Is(err, cart.ErrCartChanged):
			run.abort(ErrCartChanged)
			if req.IdempotencyKey == "" {
				return nil, ErrCartChanged
			}
			// a concurrent checkout with the same key may have consumed the cart
			existing, ferr := w.orders.FindOrderByCheckoutKey(ctx, req.UserID, req.IdempotencyKey)
			switch {
			case ferr == nil:
				return w.replay(ctx, existing)
			case errors.Is(ferr, order.ErrOrderNotFound):
				return nil, ErrCartChanged
			default:
				return nil, fmt.Errorf("%w: resolve cart change: %w", ErrInfrastructure, ferr)
			}
		case errors.Is(err, order.ErrDuplicateCheckout):
			run.abort(err)
			existing, ferr := w.orders.FindOrderByCheckoutKey(ctx, req.UserID, req.IdempotencyKey)
			if ferr != nil {
				return nil, fmt.Errorf("%w: resolve duplicate checkout: %w", ErrInfrastructure, ferr)
			}
			return w.replay(ctx, existing)
		default:
			return nil, run.abort(fmt.Errorf("%w: place order: %w", ErrInfrastructure, err))
		}
	}
	run.advance(StateOrderCreated)
	run.advance(StateCartCleared)
	run.logger.Info("order placed", "order_id", o.ID, "total", o.Total.StringFixed(2), "lines", len(o.Lines))

	res := &Result{Order: o}
	a, redirect, err := w.handOff(ctx, o, req.Buyer, req.Method)
	if err != nil {
		run.logger.Warn("payment hand-off failed, order left pending", "order_id", o.ID, "error", err)
		res.Attempt = a
		return res, fmt.Errorf("%w: %w", ErrHandOffFailed, err)
	}
	res.Attempt = a
	res.RedirectURL = redirect
	return res, nil
}

// price re-reads every product so the order binds the live catalog price.
func (w *Workflow) price(ctx context.Context, c *cart.Cart) ([]order.Line, error) {
	lines := make([]order.Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		p, err := w.catalog.GetProduct(ctx, l.ProductID)
		switch {
		case errors.Is(err, product.ErrProductNotFound):
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, l.ProductID)
		case err != nil:
			return nil, fmt.Errorf("%w: load product %s: %w", ErrInfrastructure, l.ProductID, err)
		case !p.Purchasable():
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, l.ProductID)
		}
		lines = append(lines, order.Line{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
		})
	}
	return lines, nil
}

// commit decrements stock for every line. If any decrement fails the ones
// already taken are restored before returning.
func (w *Workflow) commit(ctx context.Context, run *attempt, o *order.Order) ([]order.Line, error) {
	held := make([]order.Line, 0, len(o.Lines))
	for _, l := range o.Lines {
		ok, err := w.ledger.TryDecrement(ctx, l.ProductID, l.Quantity)
		if err != nil {
			w.compensate(ctx, run, o.ID, held)
			return nil, fmt.Errorf("%w: decrement %s: %w", ErrInfrastructure, l.ProductID, err)
		}
		if !ok {
			w.compensate(ctx, run, o.ID, held)
			return nil, fmt.Errorf("%w: %s", ErrOutOfStock, l.ProductID)
		}
		held = append(held, l)
	}
	return held, nil
}

// compensate gives back decrements taken by this attempt. It runs even if
// the request context is already cancelled. Failed increments are recorded
// as issues because the stock is otherwise lost.
func (w *Workflow) compensate(ctx context.Context, run *attempt, orderID string, held []order.Line) {
	if len(held) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	restored := 0
	for _, l := range held {
		if err := w.ledger.Increment(ctx, l.ProductID, l.Quantity); err != nil {
			issue.Record(ctx, w.issues, run.logger, issue.Issue{
				OrderID: orderID,
				Kind:    issue.KindCompensationFailed,
				Detail: map[string]any{
					"checkout_id": run.id,
					"product_id":  l.ProductID,
					"quantity":    l.Quantity,
					"error":       err.Error(),
				},
			})
			continue
		}
		restored++
	}
	w.metrics.Compensated(restored)
	run.logger.Info("inventory compensated", "restored", restored, "held", len(held))
}

// handOff stores a new payment attempt and asks the gateway for a redirect.
// The attempt exists before the processor is contacted so that a fast
// confirmation always finds it.
func (w *Workflow) handOff(ctx context.Context, o *order.Order, buyer payment.Buyer, method payment.Method) (*payment.Attempt, string, error) {
	if method == "" {
		method = payment.MethodGateway
	}
	gw := w.gateways.For(method)
	if gw == nil {
		return nil, "", fmt.Errorf("%w: %s", payment.ErrUnknownMethod, method)
	}

	a := &payment.Attempt{
		ID:         uuid.New().String(),
		OrderID:    o.ID,
		Reference:  payment.NewReference(o.ID),
		Method:     method,
		Status:     payment.AttemptCreated,
		BuyerEmail: buyer.Email,
		CreatedAt:  time.Now().UTC(),
	}
	if err := w.payments.CreateAttempt(ctx, a); err != nil {
		return nil, "", fmt.Errorf("store payment attempt: %w", err)
	}

	h, err := gw.HandOff(ctx, payment.HandOffRequest{
		OrderID:   o.ID,
		Reference: a.Reference,
		Buyer:     buyer,
		Total:     o.Total,
		Currency:  w.currency,
		Method:    method,
	})
	if err != nil {
		return a, "", err
	}
	w.logger.Info("payment handed off", "order_id", o.ID, "reference", a.Reference, "method", method)
	return a, h.RedirectURL, nil
}

// replay returns an existing order as the result of a repeated checkout.
func (w *Workflow) replay(ctx context.Context, o *order.Order) (*Result, error) {
	res := &Result{Order: o, Replayed: true}
	attempts, err := w.payments.ListAttemptsByOrder(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list payment attempts: %w", ErrInfrastructure, err)
	}
	if len(attempts) > 0 {
		res.Attempt = attempts[len(attempts)-1]
	}
	return res, nil
}

// RetryPayment starts a new hand-off for a pending order owned by userID.
func (w *Workflow) RetryPayment(ctx context.Context, userID, orderID string, buyer payment.Buyer, method payment.Method) (*Result, error) {
	o, err := w.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrNotOwner
	}
	if o.Status != order.StatusPending {
		return nil, fmt.Errorf("%w: status %s", ErrNotPayable, o.Status)
	}

	res := &Result{Order: o}
	a, redirect, err := w.handOff(ctx, o, buyer, method)
	res.Attempt = a
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrHandOffFailed, err)
	}
	res.RedirectURL = redirect
	return res, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrCartChanged):
		return "cart_changed"
	case errors.Is(err, ErrHandOffFailed):
		return "handoff_failed"
	default:
		return "error"
	}
}
