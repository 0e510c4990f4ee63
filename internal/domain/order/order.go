package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyOrder        = errors.New("order must have at least one line")
	ErrInvalidStatus     = errors.New("invalid order status transition")
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrOrderAlreadyPaid  = errors.New("order is already paid")
	ErrOrderNotPaid      = errors.New("order must be paid before shipping")
	ErrOrderShipped      = errors.New("cannot cancel shipped order")
	ErrOrderCancelled    = errors.New("order is already cancelled")
	ErrNotOwner          = errors.New("order belongs to another user")
	ErrDuplicateCheckout = errors.New("order already placed for this checkout key")
)

// validTransitions is the complete status machine. refunded is reachable only
// through the returns flow, which lives outside this repository.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled},
	StatusPaid:      {StatusShipped, StatusRefunded},
	StatusShipped:   {StatusRefunded},
	StatusCancelled: {},
	StatusRefunded:  {},
}

// ParseStatus accepts only the canonical status names.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s Status) String() string {
	return string(s)
}

// CanTransition checks the status machine for from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError explains why from -> to is not allowed.
func TransitionError(from, to Status) error {
	switch {
	case from == StatusCancelled:
		return ErrOrderCancelled
	case from == StatusShipped && to == StatusCancelled:
		return ErrOrderShipped
	case (from == StatusPaid || from == StatusShipped) && to == StatusPaid:
		return ErrOrderAlreadyPaid
	case from == StatusPending && to == StatusShipped:
		return ErrOrderNotPaid
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, from, to)
	}
}

// Line is one purchased product at the price paid. Never mutated.
type Line struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	CheckoutKey string          `json:"checkout_key,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Status      Status          `json:"status"`
	Lines       []Line          `json:"lines"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// New builds a pending order. Total is fixed here as the sum of line
// subtotals and is never recomputed.
func New(userID, checkoutKey string, lines []Line) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}

	now := time.Now().UTC()
	o := &Order{
		ID:          uuid.New().String(),
		UserID:      userID,
		CheckoutKey: checkoutKey,
		Status:      StatusPending,
		Total:       decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.Lines = make([]Line, len(lines))
	for i, l := range lines {
		l.ID = uuid.New().String()
		l.OrderID = o.ID
		o.Lines[i] = l
		o.Total = o.Total.Add(l.Subtotal())
	}
	return o, nil
}

func (o *Order) CanTransitionTo(target Status) bool {
	return CanTransition(o.Status, target)
}

// Repository persists orders. TransitionOrder is a compare-and-set on the
// status column; it reports false when the order was not in from.
type Repository interface {
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]*Order, error)
	FindOrderByCheckoutKey(ctx context.Context, userID, key string) (*Order, error)
	TransitionOrder(ctx context.Context, id string, from, to Status) (bool, error)
	ListPendingOrders(ctx context.Context, createdBefore time.Time) ([]*Order, error)
}
