package inventory

import (
	"context"
	"errors"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrUnknownProduct  = errors.New("no stock counter for product")
)

// Ledger owns the available-stock counter of every product.
//
// TryDecrement must be a single atomic conditional update in the backing
// store: it succeeds only if available >= quantity and never drives the
// counter negative. Callers must not emulate it with Available + write.
type Ledger interface {
	TryDecrement(ctx context.Context, productID string, quantity int) (bool, error)
	Increment(ctx context.Context, productID string, quantity int) error
	Available(ctx context.Context, productID string) (int, error)
}

// ValidateQuantity is shared by ledger implementations.
func ValidateQuantity(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}
