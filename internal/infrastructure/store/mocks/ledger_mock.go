package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/ec-checkout/internal/domain/inventory"
)

// MockLedger is an in-memory inventory.Ledger. TryDecrement is atomic under
// the mock's lock, like the single conditional update of the real stores.
type MockLedger struct {
	mu    sync.Mutex
	stock map[string]int

	// For tracking calls in tests
	DecrementCalls []LedgerCall
	IncrementCalls []LedgerCall

	// Error injection, keyed by product id
	DecrementErr map[string]error
	IncrementErr map[string]error
	AvailableErr error
}

// LedgerCall records parameters passed to TryDecrement or Increment
type LedgerCall struct {
	ProductID string
	Quantity  int
	OK        bool
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		stock:        make(map[string]int),
		DecrementErr: make(map[string]error),
		IncrementErr: make(map[string]error),
	}
}

func (m *MockLedger) SetStock(productID string, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] = available
}

// Stock returns the counter for productID, or -1 when it does not exist.
func (m *MockLedger) Stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.stock[productID]
	if !ok {
		return -1
	}
	return n
}

func (m *MockLedger) TryDecrement(ctx context.Context, productID string, quantity int) (bool, error) {
	if err := inventory.ValidateQuantity(quantity); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.DecrementErr[productID]; err != nil {
		m.DecrementCalls = append(m.DecrementCalls, LedgerCall{ProductID: productID, Quantity: quantity})
		return false, err
	}
	available, exists := m.stock[productID]
	ok := exists && available >= quantity
	if ok {
		m.stock[productID] = available - quantity
	}
	m.DecrementCalls = append(m.DecrementCalls, LedgerCall{ProductID: productID, Quantity: quantity, OK: ok})
	return ok, nil
}

func (m *MockLedger) Increment(ctx context.Context, productID string, quantity int) error {
	if err := inventory.ValidateQuantity(quantity); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.IncrementErr[productID]; err != nil {
		m.IncrementCalls = append(m.IncrementCalls, LedgerCall{ProductID: productID, Quantity: quantity})
		return err
	}
	if _, ok := m.stock[productID]; !ok {
		return fmt.Errorf("%w: %s", inventory.ErrUnknownProduct, productID)
	}
	m.stock[productID] += quantity
	m.IncrementCalls = append(m.IncrementCalls, LedgerCall{ProductID: productID, Quantity: quantity, OK: true})
	return nil
}

func (m *MockLedger) Available(ctx context.Context, productID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AvailableErr != nil {
		return 0, m.AvailableErr
	}
	n, ok := m.stock[productID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", inventory.ErrUnknownProduct, productID)
	}
	return n, nil
}
