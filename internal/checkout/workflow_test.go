package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/domain/issue"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/payment"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store/mocks"
)

type fixture struct {
	workflow *checkout.Workflow
	store    *mocks.MockStore
	ledger   *mocks.MockLedger
	online   *mocks.MockGateway
	manual   *mocks.MockGateway
}

func newFixture() *fixture {
	store := mocks.NewMockStore()
	ledger := mocks.NewMockLedger()
	online := mocks.NewMockGateway("https://pay.example.com/checkout")
	manual := mocks.NewMockGateway("https://shop.example.com/checkout/return")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store.SetProduct(product.Product{ID: "prod-a", Name: "A", Price: decimal.RequireFromString("10.00"), Active: true})
	store.SetProduct(product.Product{ID: "prod-b", Name: "B", Price: decimal.RequireFromString("4.50"), Active: true})
	ledger.SetStock("prod-a", 5)
	ledger.SetStock("prod-b", 1)

	w := checkout.NewWorkflow(checkout.Deps{
		Carts:    store,
		Catalog:  store,
		Ledger:   ledger,
		Orders:   store,
		Placer:   store,
		Payments: store,
		Gateways: checkout.Gateways{Online: online, Manual: manual},
		Issues:   store,
		Logger:   logger,
		Currency: "COP",
	})
	return &fixture{workflow: w, store: store, ledger: ledger, online: online, manual: manual}
}

func (f *fixture) fill(t *testing.T, userID string, lines map[string]int) {
	t.Helper()
	for productID, qty := range lines {
		p, err := f.store.GetProduct(context.Background(), productID)
		require.NoError(t, err)
		_, err = f.store.AddLine(context.Background(), userID, productID, qty, p.Price)
		require.NoError(t, err)
	}
}

func request(userID string) checkout.Request {
	return checkout.Request{
		UserID: userID,
		Buyer:  payment.Buyer{UserID: userID, Email: userID + "@example.com", Name: "Buyer"},
	}
}

// ============================================
// Checkout Tests
// ============================================

func TestWorkflow_Checkout_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 2})

	res, err := f.workflow.Checkout(ctx, request("user-1"))

	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, order.StatusPending, res.Order.Status)
	assert.True(t, res.Order.Total.Equal(decimal.NewFromInt(20)))
	require.Len(t, res.Order.Lines, 1)
	assert.True(t, res.Order.Lines[0].UnitPrice.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 3, f.ledger.Stock("prod-a"))

	// cart is gone
	c, err := f.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	// attempt stored and handed off with the stored reference
	require.NotNil(t, res.Attempt)
	assert.Equal(t, payment.MethodGateway, res.Attempt.Method)
	assert.Contains(t, res.RedirectURL, res.Attempt.Reference)
	stored, err := f.store.GetAttemptByReference(ctx, res.Attempt.Reference)
	require.NoError(t, err)
	assert.Equal(t, payment.AttemptCreated, stored.Status)

	req, ok := f.online.LastRequest()
	require.True(t, ok)
	assert.Equal(t, res.Order.ID, req.OrderID)
	assert.Equal(t, "COP", req.Currency)
	assert.True(t, req.Total.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "user-1@example.com", req.Buyer.Email)
}

func TestWorkflow_Checkout_BindsLiveCatalogPrice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	f.store.SetProduct(product.Product{ID: "prod-a", Name: "A", Price: decimal.RequireFromString("12.00"), Active: true})

	res, err := f.workflow.Checkout(ctx, request("user-1"))

	require.NoError(t, err)
	assert.True(t, res.Order.Total.Equal(decimal.NewFromInt(12)))
}

func TestWorkflow_Checkout_ManualMethod(t *testing.T) {
	f := newFixture()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	req := request("user-1")
	req.Method = payment.MethodCash

	res, err := f.workflow.Checkout(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, payment.MethodCash, res.Attempt.Method)
	_, ok := f.online.LastRequest()
	assert.False(t, ok, "online gateway not used")
	_, ok = f.manual.LastRequest()
	assert.True(t, ok)
}

func TestWorkflow_Checkout_EmptyCart(t *testing.T) {
	f := newFixture()

	_, err := f.workflow.Checkout(context.Background(), request("user-1"))

	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestWorkflow_Checkout_ProductUnavailable(t *testing.T) {
	f := newFixture()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	f.store.SetProduct(product.Product{ID: "prod-a", Name: "A", Price: decimal.NewFromInt(10), Active: false})

	_, err := f.workflow.Checkout(context.Background(), request("user-1"))

	assert.ErrorIs(t, err, checkout.ErrProductUnavailable)
	assert.Empty(t, f.ledger.DecrementCalls)
	assert.Equal(t, 5, f.ledger.Stock("prod-a"))
}

func TestWorkflow_Checkout_CartLoadFailure(t *testing.T) {
	f := newFixture()
	f.store.GetCartErr = errors.New("connection refused")

	_, err := f.workflow.Checkout(context.Background(), request("user-1"))

	assert.ErrorIs(t, err, checkout.ErrInfrastructure)
}

func TestWorkflow_Checkout_OutOfStockRollsBack(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	// prod-b has 1 left; whichever line is decremented first, nothing sticks
	f.fill(t, "user-1", map[string]int{"prod-a": 2, "prod-b": 2})

	_, err := f.workflow.Checkout(ctx, request("user-1"))

	assert.ErrorIs(t, err, checkout.ErrOutOfStock)
	assert.Equal(t, 5, f.ledger.Stock("prod-a"))
	assert.Equal(t, 1, f.ledger.Stock("prod-b"))
	assert.Equal(t, 0, f.store.OrderCount())

	c, err := f.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2, "cart kept on failure")
}

func TestWorkflow_Checkout_DecrementFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.fill(t, "user-1", map[string]int{"prod-a": 1, "prod-b": 1})
	f.ledger.DecrementErr["prod-b"] = errors.New("ledger unavailable")

	_, err := f.workflow.Checkout(context.Background(), request("user-1"))

	assert.ErrorIs(t, err, checkout.ErrInfrastructure)
	assert.Equal(t, 5, f.ledger.Stock("prod-a"))
	assert.Equal(t, 1, f.ledger.Stock("prod-b"))
}

func TestWorkflow_Checkout_PlaceOrderFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.fill(t, "user-1", map[string]int{"prod-a": 2})
	f.store.PlaceOrderErr = errors.New("deadlock detected")

	_, err := f.workflow.Checkout(context.Background(), request("user-1"))

	assert.ErrorIs(t, err, checkout.ErrInfrastructure)
	assert.Equal(t, 5, f.ledger.Stock("prod-a"))
	assert.Empty(t, f.online.Requests)
}

func TestWorkflow_Checkout_CompensationFailureRecordsIssue(t *testing.T) {
	f := newFixture()
	f.fill(t, "user-1", map[string]int{"prod-a": 2})
	f.store.PlaceOrderErr = errors.New("deadlock detected")
	f.ledger.IncrementErr["prod-a"] = errors.New("ledger unavailable")

	_, err := f.workflow.Checkout(context.Background(), request("user-1"))

	require.Error(t, err)
	issues := f.store.IssuesOfKind(issue.KindCompensationFailed)
	require.Len(t, issues, 1)
	assert.Equal(t, "prod-a", issues[0].Detail["product_id"])
	assert.Equal(t, 2, issues[0].Detail["quantity"])
}

func TestWorkflow_Checkout_CartChangedDuringCheckout(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})

	var once sync.Once
	f.store.PlaceOrderHook = func() {
		once.Do(func() {
			_, err := f.store.AddLine(ctx, "user-1", "prod-b", 1, decimal.RequireFromString("4.50"))
			require.NoError(t, err)
		})
	}

	_, err := f.workflow.Checkout(ctx, request("user-1"))

	assert.ErrorIs(t, err, checkout.ErrCartChanged)
	assert.Equal(t, 5, f.ledger.Stock("prod-a"))
	assert.Equal(t, 0, f.store.OrderCount())

	c, err := f.store.GetCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2, "concurrent edit survives")
}

func TestWorkflow_Checkout_ConcurrentBuyersNeverOversell(t *testing.T) {
	f := newFixture()
	const buyers = 8
	for i := 0; i < buyers; i++ {
		f.fill(t, fmt.Sprintf("user-%d", i), map[string]int{"prod-b": 1})
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := f.workflow.Checkout(context.Background(), request(userID))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, checkout.ErrOutOfStock):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("user-%d", i))
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, 0, f.ledger.Stock("prod-b"))
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestWorkflow_Checkout_IdempotentReplay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 2})
	req := request("user-1")
	req.IdempotencyKey = "key-1"

	first, err := f.workflow.Checkout(ctx, req)
	require.NoError(t, err)

	second, err := f.workflow.Checkout(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	require.NotNil(t, second.Attempt)
	assert.Equal(t, first.Attempt.Reference, second.Attempt.Reference)
	assert.Equal(t, 3, f.ledger.Stock("prod-a"), "stock taken once")
	assert.Equal(t, 1, f.store.OrderCount())
	assert.Len(t, f.online.Requests, 1)
}

func TestWorkflow_Checkout_SameKeyRaceReplays(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 2})
	req := request("user-1")
	req.IdempotencyKey = "key-1"

	// the twin request wins the cart while this one is about to place its order
	var (
		raced bool
		twin  *checkout.Result
	)
	f.store.PlaceOrderHook = func() {
		if raced {
			return
		}
		raced = true
		var err error
		twin, err = f.workflow.Checkout(ctx, req)
		require.NoError(t, err)
	}

	res, err := f.workflow.Checkout(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, twin)
	assert.True(t, res.Replayed)
	assert.Equal(t, twin.Order.ID, res.Order.ID)
	require.NotNil(t, res.Attempt)
	assert.Equal(t, twin.Attempt.Reference, res.Attempt.Reference)
	assert.Equal(t, 3, f.ledger.Stock("prod-a"), "loser's decrement compensated")
	assert.Equal(t, 1, f.store.OrderCount())
	assert.Len(t, f.online.Requests, 1)
}

func TestWorkflow_Checkout_CartChangedWithUnusedKey(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	req := request("user-1")
	req.IdempotencyKey = "key-1"

	var once sync.Once
	f.store.PlaceOrderHook = func() {
		once.Do(func() {
			_, err := f.store.AddLine(ctx, "user-1", "prod-b", 1, decimal.RequireFromString("4.50"))
			require.NoError(t, err)
		})
	}

	_, err := f.workflow.Checkout(ctx, req)

	assert.ErrorIs(t, err, checkout.ErrCartChanged)
	assert.Equal(t, 5, f.ledger.Stock("prod-a"))
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestWorkflow_Checkout_IdempotencyKeyIsPerUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	f.fill(t, "user-2", map[string]int{"prod-a": 1})

	r1 := request("user-1")
	r1.IdempotencyKey = "same"
	r2 := request("user-2")
	r2.IdempotencyKey = "same"

	a, err := f.workflow.Checkout(ctx, r1)
	require.NoError(t, err)
	b, err := f.workflow.Checkout(ctx, r2)
	require.NoError(t, err)

	assert.NotEqual(t, a.Order.ID, b.Order.ID)
	assert.False(t, b.Replayed)
}

func TestWorkflow_Checkout_HandOffFailureKeepsOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	f.online.Err = errors.New("processor timeout")

	res, err := f.workflow.Checkout(ctx, request("user-1"))

	assert.ErrorIs(t, err, checkout.ErrHandOffFailed)
	require.NotNil(t, res)
	assert.Empty(t, res.RedirectURL)
	assert.Equal(t, 4, f.ledger.Stock("prod-a"), "stock stays committed")

	o, err := f.store.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)

	attempts, err := f.store.ListAttemptsByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 1, "attempt stored before the processor call")
}

func TestWorkflow_Checkout_AttemptStoreFailure(t *testing.T) {
	f := newFixture()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	f.store.CreateAttemptErr = errors.New("disk full")

	res, err := f.workflow.Checkout(context.Background(), request("user-1"))

	assert.ErrorIs(t, err, checkout.ErrHandOffFailed)
	require.NotNil(t, res)
	assert.Nil(t, res.Attempt)
	assert.Empty(t, f.online.Requests, "processor never contacted")
}

// ============================================
// Retry Payment Tests
// ============================================

func TestWorkflow_RetryPayment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	f.online.Err = errors.New("processor timeout")
	first, err := f.workflow.Checkout(ctx, request("user-1"))
	require.ErrorIs(t, err, checkout.ErrHandOffFailed)

	f.online.Err = nil
	res, err := f.workflow.RetryPayment(ctx, "user-1", first.Order.ID, payment.Buyer{Email: "user-1@example.com"}, "")

	require.NoError(t, err)
	assert.NotEqual(t, first.Attempt.Reference, res.Attempt.Reference)
	assert.NotEmpty(t, res.RedirectURL)

	attempts, err := f.store.ListAttemptsByOrder(ctx, first.Order.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestWorkflow_RetryPayment_NotOwner(t *testing.T) {
	f := newFixture()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	res, err := f.workflow.Checkout(context.Background(), request("user-1"))
	require.NoError(t, err)

	_, err = f.workflow.RetryPayment(context.Background(), "user-2", res.Order.ID, payment.Buyer{}, "")

	assert.ErrorIs(t, err, order.ErrNotOwner)
}

func TestWorkflow_RetryPayment_NotPayable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.fill(t, "user-1", map[string]int{"prod-a": 1})
	res, err := f.workflow.Checkout(ctx, request("user-1"))
	require.NoError(t, err)
	_, err = f.store.TransitionOrder(ctx, res.Order.ID, order.StatusPending, order.StatusCancelled)
	require.NoError(t, err)

	_, err = f.workflow.RetryPayment(ctx, "user-1", res.Order.ID, payment.Buyer{}, "")

	assert.ErrorIs(t, err, checkout.ErrNotPayable)
}

func TestWorkflow_RetryPayment_UnknownOrder(t *testing.T) {
	f := newFixture()

	_, err := f.workflow.RetryPayment(context.Background(), "user-1", "missing", payment.Buyer{}, "")

	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}
