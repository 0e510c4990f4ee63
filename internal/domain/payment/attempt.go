package payment

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrAttemptNotFound = errors.New("payment attempt not found")
	ErrUnknownMethod   = errors.New("unknown payment method")
)

// Method is how the buyer intends to pay.
type Method string

const (
	MethodGateway      Method = "gateway"
	MethodBankTransfer Method = "bank_transfer"
	MethodCash         Method = "cash"
)

// ParseMethod maps a request value to a Method; empty means the gateway.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "":
		return MethodGateway, nil
	case MethodGateway, MethodBankTransfer, MethodCash:
		return Method(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Manual methods have no external verification and are confirmed by staff.
func (m Method) Manual() bool {
	return m == MethodBankTransfer || m == MethodCash
}

type AttemptStatus string

const (
	AttemptCreated   AttemptStatus = "created"
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt correlates one processor transaction reference to one order. It is
// settled exactly once and is immutable afterwards.
type Attempt struct {
	ID          string        `json:"id"`
	OrderID     string        `json:"order_id"`
	Reference   string        `json:"reference"`
	Method      Method        `json:"method"`
	Status      AttemptStatus `json:"status"`
	BuyerEmail  string        `json:"-"`
	GatewayCode string        `json:"gateway_code,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	SettledAt   *time.Time    `json:"settled_at,omitempty"`
}

// Repository persists attempts. SettleAttempt only moves an attempt out of
// created and reports false if it was already settled.
type Repository interface {
	CreateAttempt(ctx context.Context, a *Attempt) error
	GetAttemptByReference(ctx context.Context, reference string) (*Attempt, error)
	ListAttemptsByOrder(ctx context.Context, orderID string) ([]*Attempt, error)
	SettleAttempt(ctx context.Context, reference string, status AttemptStatus, code string) (bool, error)
}
