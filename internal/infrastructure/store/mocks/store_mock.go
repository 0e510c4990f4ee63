package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/issue"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/notification"
)

// MockStore is an in-memory implementation of every repository, with the
// same atomicity guarantees as the Postgres store.
type MockStore struct {
	mu            sync.Mutex
	products      map[string]product.Product
	carts         map[string]*cart.Cart // by user id
	orders        map[string]*order.Order
	attempts      map[string]*payment.Attempt // by reference
	notifications map[string]notification.Message

	Issues []issue.Issue

	// For tracking calls in tests
	PlaceOrderCalls []PlaceOrderCall
	TransitionCalls []TransitionCall
	SettleCalls     []SettleCall

	// Error injection
	GetCartErr       error
	GetProductErr    error
	PlaceOrderErr    error
	CreateAttemptErr error
	RecordIssueErr   error
	TransitionErr    error
	SaveNotifyErr    error

	// PlaceOrderHook runs inside PlaceOrder before the version check, with
	// the lock released; tests use it to interleave concurrent mutations.
	PlaceOrderHook func()
}

// PlaceOrderCall records parameters passed to PlaceOrder
type PlaceOrderCall struct {
	OrderID     string
	CartID      string
	CartVersion int
}

// TransitionCall records parameters passed to TransitionOrder
type TransitionCall struct {
	OrderID string
	From    order.Status
	To      order.Status
	Applied bool
}

// SettleCall records parameters passed to SettleAttempt
type SettleCall struct {
	Reference string
	Status    payment.AttemptStatus
	Applied   bool
}

func NewMockStore() *MockStore {
	return &MockStore{
		products:      make(map[string]product.Product),
		carts:         make(map[string]*cart.Cart),
		orders:        make(map[string]*order.Order),
		attempts:      make(map[string]*payment.Attempt),
		notifications: make(map[string]notification.Message),
	}
}

// ==========================================
// Catalog
// ==========================================

func (m *MockStore) SetProduct(p product.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MockStore) GetProduct(ctx context.Context, id string) (*product.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetProductErr != nil {
		return nil, m.GetProductErr
	}
	p, ok := m.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	return &p, nil
}

// ==========================================
// Carts
// ==========================================

func (m *MockStore) GetCart(ctx context.Context, userID string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetCartErr != nil {
		return nil, m.GetCartErr
	}
	c, ok := m.carts[userID]
	if !ok {
		return &cart.Cart{UserID: userID}, nil
	}
	return copyCart(c), nil
}

func (m *MockStore) GetLine(ctx context.Context, lineID string) (*cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, i := m.findLine(lineID)
	if i < 0 {
		return nil, cart.ErrLineNotFound
	}
	l := c.Lines[i]
	return &l, nil
}

func (m *MockStore) AddLine(ctx context.Context, userID, productID string, quantity int, unitPrice decimal.Decimal) (*cart.Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	c, ok := m.carts[userID]
	if !ok {
		c = &cart.Cart{ID: uuid.New().String(), UserID: userID, CreatedAt: now}
		m.carts[userID] = c
	}
	c.Version++
	c.UpdatedAt = now

	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity += quantity
			l := c.Lines[i]
			return &l, nil
		}
	}
	l := cart.Line{
		ID:        uuid.New().String(),
		CartID:    c.ID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	}
	c.Lines = append(c.Lines, l)
	return &l, nil
}

func (m *MockStore) UpdateLine(ctx context.Context, lineID string, quantity int, unitPrice decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, i := m.findLine(lineID)
	if i < 0 {
		return cart.ErrLineNotFound
	}
	c.Lines[i].Quantity = quantity
	c.Lines[i].UnitPrice = unitPrice
	c.Version++
	return nil
}

func (m *MockStore) DeleteLine(ctx context.Context, lineID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, i := m.findLine(lineID)
	if i < 0 {
		return cart.ErrLineNotFound
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	c.Version++
	if len(c.Lines) == 0 {
		delete(m.carts, c.UserID)
	}
	return nil
}

func (m *MockStore) DeleteCart(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
	return nil
}

func (m *MockStore) findLine(lineID string) (*cart.Cart, int) {
	for _, c := range m.carts {
		for i, l := range c.Lines {
			if l.ID == lineID {
				return c, i
			}
		}
	}
	return nil, -1
}

// ==========================================
// Orders
// ==========================================

func (m *MockStore) PlaceOrder(ctx context.Context, o *order.Order, cartID string, cartVersion int) error {
	if m.PlaceOrderHook != nil {
		m.PlaceOrderHook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.PlaceOrderCalls = append(m.PlaceOrderCalls, PlaceOrderCall{
		OrderID:     o.ID,
		CartID:      cartID,
		CartVersion: cartVersion,
	})
	if m.PlaceOrderErr != nil {
		return m.PlaceOrderErr
	}

	c, ok := m.carts[o.UserID]
	if !ok || c.ID != cartID || c.Version != cartVersion {
		return cart.ErrCartChanged
	}
	if o.CheckoutKey != "" {
		for _, existing := range m.orders {
			if existing.UserID == o.UserID && existing.CheckoutKey == o.CheckoutKey {
				return order.ErrDuplicateCheckout
			}
		}
	}

	delete(m.carts, o.UserID)
	m.orders[o.ID] = copyOrder(o)
	return nil
}

// PutOrder stores an order directly, bypassing checkout.
func (m *MockStore) PutOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = copyOrder(o)
}

func (m *MockStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (m *MockStore) ListOrdersByUser(ctx context.Context, userID string) ([]*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockStore) FindOrderByCheckoutKey(ctx context.Context, userID, key string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.UserID == userID && o.CheckoutKey == key {
			return copyOrder(o), nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (m *MockStore) TransitionOrder(ctx context.Context, id string, from, to order.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TransitionErr != nil {
		return false, m.TransitionErr
	}
	if !order.CanTransition(from, to) {
		return false, order.TransitionError(from, to)
	}
	o, ok := m.orders[id]
	applied := ok && o.Status == from
	if applied {
		o.Status = to
		o.UpdatedAt = time.Now().UTC()
	}
	m.TransitionCalls = append(m.TransitionCalls, TransitionCall{OrderID: id, From: from, To: to, Applied: applied})
	return applied, nil
}

func (m *MockStore) ListPendingOrders(ctx context.Context, createdBefore time.Time) ([]*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.Order
	for _, o := range m.orders {
		if o.Status == order.StatusPending && o.CreatedAt.Before(createdBefore) {
			out = append(out, copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// OrderCount returns the number of stored orders.
func (m *MockStore) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// ==========================================
// Payment attempts
// ==========================================

func (m *MockStore) CreateAttempt(ctx context.Context, a *payment.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateAttemptErr != nil {
		return m.CreateAttemptErr
	}
	cp := *a
	m.attempts[a.Reference] = &cp
	return nil
}

func (m *MockStore) GetAttemptByReference(ctx context.Context, reference string) (*payment.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[reference]
	if !ok {
		return nil, payment.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockStore) ListAttemptsByOrder(ctx context.Context, orderID string) ([]*payment.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Attempt
	for _, a := range m.attempts {
		if a.OrderID == orderID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockStore) SettleAttempt(ctx context.Context, reference string, status payment.AttemptStatus, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[reference]
	applied := ok && a.Status == payment.AttemptCreated
	if applied {
		now := time.Now().UTC()
		a.Status = status
		a.GatewayCode = code
		a.SettledAt = &now
	}
	m.SettleCalls = append(m.SettleCalls, SettleCall{Reference: reference, Status: status, Applied: applied})
	return applied, nil
}

// ==========================================
// Issues and notifications
// ==========================================

func (m *MockStore) RecordIssue(ctx context.Context, i issue.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordIssueErr != nil {
		return m.RecordIssueErr
	}
	m.Issues = append(m.Issues, i)
	return nil
}

// IssuesOfKind returns recorded issues of kind k.
func (m *MockStore) IssuesOfKind(k issue.Kind) []issue.Issue {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []issue.Issue
	for _, i := range m.Issues {
		if i.Kind == k {
			out = append(out, i)
		}
	}
	return out
}

func (m *MockStore) ListOpenIssues(ctx context.Context, limit int) ([]issue.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]issue.Issue(nil), m.Issues...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) SaveNotification(ctx context.Context, n notification.Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveNotifyErr != nil {
		return false, m.SaveNotifyErr
	}
	if _, ok := m.notifications[n.ID]; ok {
		return false, nil
	}
	m.notifications[n.ID] = n
	return true, nil
}

func (m *MockStore) NotificationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

func copyCart(c *cart.Cart) *cart.Cart {
	cp := *c
	cp.Lines = append([]cart.Line(nil), c.Lines...)
	return &cp
}

func copyOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Lines = append([]order.Line(nil), o.Lines...)
	return &cp
}
