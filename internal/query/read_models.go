package query

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
)

// CartLineView represents a line in the cart
type CartLineView struct {
	LineID    string          `json:"line_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CartView is what the buyer sees of their cart. ID is empty until the
// first line is added.
type CartView struct {
	ID    string          `json:"id"`
	Lines []CartLineView  `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

type OrderLineView struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// PaymentView is a payment attempt without processor-only fields.
type PaymentView struct {
	Reference string                `json:"reference"`
	Method    payment.Method        `json:"method"`
	Status    payment.AttemptStatus `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
	SettledAt *time.Time            `json:"settled_at,omitempty"`
}

// OrderView is the order detail returned to owners and admins
type OrderView struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Status    order.Status    `json:"status"`
	Total     decimal.Decimal `json:"total"`
	Lines     []OrderLineView `json:"lines"`
	Payments  []PaymentView   `json:"payments,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newCartView(c *cart.Cart) *CartView {
	v := &CartView{Lines: []CartLineView{}, Total: decimal.Zero}
	if c == nil {
		return v
	}
	v.ID = c.ID
	for _, l := range c.Lines {
		v.Lines = append(v.Lines, CartLineView{
			LineID:    l.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	v.Total = c.Total()
	return v
}

func newOrderView(o *order.Order, attempts []*payment.Attempt) *OrderView {
	v := &OrderView{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Total:     o.Total,
		Lines:     make([]OrderLineView, 0, len(o.Lines)),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for _, l := range o.Lines {
		v.Lines = append(v.Lines, OrderLineView{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	for _, a := range attempts {
		v.Payments = append(v.Payments, PaymentView{
			Reference: a.Reference,
			Method:    a.Method,
			Status:    a.Status,
			CreatedAt: a.CreatedAt,
			SettledAt: a.SettledAt,
		})
	}
	return v
}
