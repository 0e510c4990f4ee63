package cart

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidProduct     = errors.New("product_id is required")
	ErrLineNotFound       = errors.New("cart line not found")
	ErrNotOwner           = errors.New("cart line belongs to another user")
	ErrOutOfStock         = errors.New("not enough stock")
	ErrProductUnavailable = errors.New("product is no longer available")
)

// Line is one product in a cart. UnitPrice is the catalog price observed
// when the line was created or last updated; it binds nothing until checkout.
type Line struct {
	ID        string          `json:"id"`
	CartID    string          `json:"cart_id"`
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart holds at most one line per product. Version increases on every line
// mutation and lets checkout detect a cart that changed under it.
type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Version   int       `json:"version"`
	Lines     []Line    `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// QuantityOf returns the quantity already in the cart for productID.
func (c *Cart) QuantityOf(productID string) int {
	if c == nil {
		return 0
	}
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

// Repository persists carts.
//
// GetCart returns an empty cart with no ID when the user has none yet.
// AddLine creates the cart lazily and, if a line for the product exists,
// adds to its quantity while keeping its original price snapshot.
// DeleteLine removes the cart row once its last line is gone.
type Repository interface {
	GetCart(ctx context.Context, userID string) (*Cart, error)
	GetLine(ctx context.Context, lineID string) (*Line, error)
	AddLine(ctx context.Context, userID, productID string, quantity int, unitPrice decimal.Decimal) (*Line, error)
	UpdateLine(ctx context.Context, lineID string, quantity int, unitPrice decimal.Decimal) error
	DeleteLine(ctx context.Context, lineID string) error
	DeleteCart(ctx context.Context, userID string) error
}

// ErrCartChanged is returned by checkout storage when the cart was modified
// after it was read.
var ErrCartChanged = errors.New("cart changed during checkout")
