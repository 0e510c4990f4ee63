package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
)

// Handler serves read views straight from the repositories.
type Handler struct {
	carts    cart.Repository
	orders   order.Repository
	payments payment.Repository
	logger   *slog.Logger
}

func NewHandler(carts cart.Repository, orders order.Repository, payments payment.Repository, logger *slog.Logger) *Handler {
	return &Handler{
		carts:    carts,
		orders:   orders,
		payments: payments,
		logger:   logger.With("component", "query"),
	}
}

// Cart
func (h *Handler) GetCart(ctx context.Context, userID string) (*CartView, error) {
	c, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return newCartView(c), nil
}

// Orders

// GetOrder returns the order with its payment attempts. Unless admin is set
// the order must belong to userID.
func (h *Handler) GetOrder(ctx context.Context, orderID, userID string, admin bool) (*OrderView, error) {
	o, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin && o.UserID != userID {
		return nil, order.ErrNotOwner
	}

	attempts, err := h.payments.ListAttemptsByOrder(ctx, o.ID)
	if err != nil {
		// the order itself is still worth returning
		h.logger.Error("failed to load payment attempts", "order_id", o.ID, "error", err)
		attempts = nil
	}
	return newOrderView(o, attempts), nil
}

// ListOrdersByUser returns the user's order history, newest first.
func (h *Handler) ListOrdersByUser(ctx context.Context, userID string) ([]*OrderView, error) {
	orders, err := h.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	views := make([]*OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o, nil))
	}
	return views, nil
}
