package payment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrHandOffRejected = errors.New("payment processor rejected hand-off")

// Buyer is the contact information the processor needs.
type Buyer struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// HandOffRequest carries everything the processor needs. Reference is
// issued and stored by the caller before the hand-off so that an early
// confirmation can always be resolved.
type HandOffRequest struct {
	OrderID   string
	Reference string
	Buyer     Buyer
	Total     decimal.Decimal
	Currency  string
	Method    Method
}

// HandOff tells the client where to go to pay.
type HandOff struct {
	RedirectURL string `json:"redirect_url"`
}

// Gateway starts a payment with an external processor.
type Gateway interface {
	HandOff(ctx context.Context, req HandOffRequest) (*HandOff, error)
}

// NewReference builds a unique correlation reference for orderID.
func NewReference(orderID string) string {
	return "ORDER_" + orderID + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
