package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/cart"
	"storefront/internal/metrics"
	"storefront/internal/order"
	"storefront/internal/product"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// --- Collaborators ---

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Place(ctx context.Context, userID uint, items []order.LineItem) (*order.Order, error) {
	args := m.Called(ctx, userID, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

// expectPlace makes the ledger echo back whatever it is asked to persist.
func expectPlace(l *MockLedger, userID uint) *order.Order {
	placed := &order.Order{ID: 100, Status: order.StatusPending}
	l.On("Place", mock.Anything, userID, mock.Anything).
		Run(func(args mock.Arguments) {
			placed.UserID = args.Get(1).(uint)
			placed.Items = args.Get(2).([]order.LineItem)
		}).
		Return(placed, nil)
	return placed
}

// memCatalog is an in-memory catalog; WithStockLock serializes checkouts.
type memCatalog struct {
	lock sync.Mutex

	mu        sync.Mutex
	products  map[uint]*product.Product
	reduceErr map[uint]error
	blockOn   uint
	increases int
}

func newCatalog(products ...product.Product) *memCatalog {
	c := &memCatalog{
		products:  make(map[uint]*product.Product),
		reduceErr: make(map[uint]error),
	}
	for i := range products {
		p := products[i]
		c.products[p.ID] = &p
	}
	return c
}

func (c *memCatalog) WithStockLock(ctx context.Context, _ []uint, fn func(product.Stock) error) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return fn(c)
}

func (c *memCatalog) GetByID(_ context.Context, id uint) (*product.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, product.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *memCatalog) ReduceStock(ctx context.Context, id uint, qty int) (int, error) {
	if id == c.blockOn {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reduceErr[id]; err != nil {
		return 0, err
	}
	p, ok := c.products[id]
	if !ok {
		return 0, product.ErrProductNotFound
	}
	if p.Stock < qty {
		return p.Stock, product.ErrInsufficientStock
	}
	p.Stock -= qty
	return p.Stock, nil
}

func (c *memCatalog) IncreaseStock(ctx context.Context, id uint, qty int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return 0, product.ErrProductNotFound
	}
	p.Stock += qty
	c.increases++
	return p.Stock, nil
}

func (c *memCatalog) stock(id uint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products[id].Stock
}

func (c *memCatalog) remove(id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

func item(id uint, name string, price string, stock int) product.Product {
	return product.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Stock: stock}
}

func fill(t *testing.T, catalog *memCatalog, lines map[uint]int) *cart.Cart {
	t.Helper()
	svc := cart.NewService(catalog)
	c := cart.New(1)
	for id, qty := range lines {
		require.NoError(t, svc.Add(context.Background(), c, id, qty))
	}
	return c
}

// --- Scenarios ---

func TestCheckout_Success(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 5))
	ledger := new(MockLedger)
	placed := expectPlace(ledger, 1)
	c := fill(t, catalog, map[uint]int{1: 3})

	o, err := NewOrchestrator(catalog, ledger, nil, Config{}).Checkout(ctx, 1, c)
	require.NoError(t, err)

	assert.Same(t, placed, o)
	assert.Equal(t, order.StatusPending, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, order.LineItem{ProductID: 1, Name: "Mug", Price: decimal.RequireFromString("9.99"), Qty: 3}, o.Items[0])
	assert.Equal(t, 2, catalog.stock(1))
	assert.True(t, c.IsEmpty())
	ledger.AssertNumberOfCalls(t, "Place", 1)
}

func TestCheckout_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 2))
	ledger := new(MockLedger)
	c := fill(t, catalog, map[uint]int{1: 3})

	_, err := NewOrchestrator(catalog, ledger, nil, Config{}).Checkout(ctx, 1, c)

	require.ErrorIs(t, err, product.ErrInsufficientStock)
	var shortage *StockShortageError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, uint(1), shortage.ProductID)
	assert.Equal(t, 3, shortage.Requested)
	assert.Equal(t, 2, shortage.Available)
	assert.Contains(t, err.Error(), `"Mug"`)

	assert.Equal(t, 2, catalog.stock(1))
	assert.Equal(t, 3, c.Quantity(1))
	ledger.AssertNotCalled(t, "Place", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_ReservationFailureCompensates(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 5), item(2, "Lamp", "20.00", 5))
	catalog.reduceErr[2] = errors.New("disk full")
	ledger := new(MockLedger)
	c := fill(t, catalog, map[uint]int{1: 2, 2: 1})

	_, err := NewOrchestrator(catalog, ledger, nil, Config{}).Checkout(ctx, 1, c)

	require.ErrorIs(t, err, ErrReservationFailed)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 5, catalog.stock(1))
	assert.Equal(t, 5, catalog.stock(2))
	assert.Equal(t, 1, catalog.increases)
	assert.Equal(t, []cart.Item{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}}, c.Items())
	ledger.AssertNotCalled(t, "Place", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_StockTakenAfterValidation(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 5), item(2, "Lamp", "20.00", 5))
	// validation saw enough stock, the conditional decrement did not
	catalog.reduceErr[2] = product.ErrInsufficientStock
	ledger := new(MockLedger)
	c := fill(t, catalog, map[uint]int{1: 2, 2: 1})

	_, err := NewOrchestrator(catalog, ledger, nil, Config{}).Checkout(ctx, 1, c)

	require.ErrorIs(t, err, ErrReservationFailed)
	assert.ErrorIs(t, err, product.ErrInsufficientStock)
	var shortage *StockShortageError
	assert.False(t, errors.As(err, &shortage))
	assert.Equal(t, metrics.OutcomeReservationFailed, outcome(err))

	assert.Equal(t, 5, catalog.stock(1))
	assert.Equal(t, 5, catalog.stock(2))
	assert.Equal(t, 1, catalog.increases)
	assert.Equal(t, 2, c.Len())
	ledger.AssertNotCalled(t, "Place", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_ReservationTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 5), item(2, "Lamp", "20.00", 5))
	catalog.blockOn = 2
	ledger := new(MockLedger)
	c := fill(t, catalog, map[uint]int{1: 4, 2: 1})

	orch := NewOrchestrator(catalog, ledger, nil, Config{ReservationTimeout: 30 * time.Millisecond})

	start := time.Now()
	_, err := orch.Checkout(ctx, 1, c)

	require.ErrorIs(t, err, ErrReservationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	// the compensating increase ran although the reservation deadline had passed
	assert.Equal(t, 5, catalog.stock(1))
	assert.Equal(t, 2, c.Len())
}

func TestCheckout_CommitFailureCompensates(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 5), item(2, "Lamp", "20.00", 1))
	ledger := new(MockLedger)
	ledger.On("Place", mock.Anything, uint(1), mock.Anything).Return(nil, errors.New("connection reset"))
	c := fill(t, catalog, map[uint]int{1: 5, 2: 1})

	_, err := NewOrchestrator(catalog, ledger, nil, Config{}).Checkout(ctx, 1, c)

	require.ErrorIs(t, err, ErrCommitFailed)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 5, catalog.stock(1))
	assert.Equal(t, 1, catalog.stock(2))
	assert.Equal(t, 2, c.Len())
}

func TestCheckout_DropsVanishedProducts(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 5), item(9, "Gone", "1.00", 5))
	ledger := new(MockLedger)
	expectPlace(ledger, 1)
	c := fill(t, catalog, map[uint]int{1: 1, 9: 2})
	catalog.remove(9)

	o, err := NewOrchestrator(catalog, ledger, nil, Config{}).Checkout(ctx, 1, c)
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.Equal(t, uint(1), o.Items[0].ProductID)
	assert.True(t, c.IsEmpty())
}

func TestCheckout_EmptyCart(t *testing.T) {
	ctx := context.Background()

	t.Run("NoLines", func(t *testing.T) {
		ledger := new(MockLedger)
		_, err := NewOrchestrator(newCatalog(), ledger, nil, Config{}).Checkout(ctx, 1, cart.New(1))
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("EveryLineVanished", func(t *testing.T) {
		catalog := newCatalog(item(3, "Gone", "1.00", 5))
		ledger := new(MockLedger)
		c := fill(t, catalog, map[uint]int{3: 1})
		catalog.remove(3)

		_, err := NewOrchestrator(catalog, ledger, nil, Config{}).Checkout(ctx, 1, c)
		assert.ErrorIs(t, err, ErrEmptyCart)
		assert.Equal(t, 1, c.Len())
		ledger.AssertNotCalled(t, "Place", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCheckout_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 5))
	ledger := new(MockLedger)
	ledger.On("Place", mock.Anything, mock.Anything, mock.Anything).Return(&order.Order{ID: 1}, nil)
	orch := NewOrchestrator(catalog, ledger, nil, Config{})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		c := fill(t, catalog, map[uint]int{1: 2})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := orch.Checkout(ctx, 1, c); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, product.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, catalog.stock(1))
}

func TestCheckout_SameCartConcurrently(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 10))
	ledger := new(MockLedger)
	ledger.On("Place", mock.Anything, uint(1), mock.Anything).Return(&order.Order{ID: 1}, nil)
	orch := NewOrchestrator(catalog, ledger, nil, Config{})
	c := fill(t, catalog, map[uint]int{1: 3})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = orch.Checkout(ctx, 1, c)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrEmptyCart)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 7, catalog.stock(1))
	assert.True(t, c.IsEmpty())
	ledger.AssertNumberOfCalls(t, "Place", 1)
}

func TestCheckout_KeepsLinesAddedDuringCheckout(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(item(1, "Mug", "9.99", 10), item(2, "Lamp", "20.00", 10))
	c := fill(t, catalog, map[uint]int{1: 2})
	svc := cart.NewService(catalog)

	ledger := new(MockLedger)
	ledger.On("Place", mock.Anything, uint(1), mock.Anything).
		Run(func(mock.Arguments) {
			// the user keeps shopping while the order is being saved
			require.NoError(t, svc.Add(ctx, c, 1, 1))
			require.NoError(t, svc.Add(ctx, c, 2, 4))
		}).
		Return(&order.Order{ID: 1}, nil)

	_, err := NewOrchestrator(catalog, ledger, nil, Config{}).Checkout(ctx, 1, c)
	require.NoError(t, err)

	assert.Equal(t, 8, catalog.stock(1))
	assert.Equal(t, []cart.Item{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 4}}, c.Items())
}

func TestCheckout_CartBusyRespectsContext(t *testing.T) {
	catalog := newCatalog(item(1, "Mug", "9.99", 10))
	ledger := new(MockLedger)
	c := fill(t, catalog, map[uint]int{1: 1})

	unlock, err := c.LockCheckout(context.Background())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = NewOrchestrator(catalog, ledger, nil, Config{}).Checkout(ctx, 1, c)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 10, catalog.stock(1))
	assert.Equal(t, 1, c.Quantity(1))
	ledger.AssertNotCalled(t, "Place", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	catalog := newCatalog(item(1, "Mug", "9.99", 3), item(2, "Lamp", "20.00", 5))
	catalog.reduceErr[2] = errors.New("disk full")
	ledger := new(MockLedger)
	expectPlace(ledger, 1)
	orch := NewOrchestrator(catalog, ledger, metrics.New(reg), Config{})

	_, err := orch.Checkout(ctx, 1, fill(t, catalog, map[uint]int{1: 1}))
	require.NoError(t, err)
	_, err = orch.Checkout(ctx, 1, fill(t, catalog, map[uint]int{1: 5}))
	require.Error(t, err)
	_, err = orch.Checkout(ctx, 1, fill(t, catalog, map[uint]int{1: 2, 2: 1}))
	require.Error(t, err)

	expected := `
# HELP storefront_checkout_total Checkouts by outcome.
# TYPE storefront_checkout_total counter
storefront_checkout_total{outcome="insufficient_stock"} 1
storefront_checkout_total{outcome="reservation_failed"} 1
storefront_checkout_total{outcome="success"} 1
# HELP storefront_stock_compensations_total Stock units returned to the catalog, by reason.
# TYPE storefront_stock_compensations_total counter
storefront_stock_compensations_total{reason="reservation"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"storefront_checkout_total", "storefront_stock_compensations_total"))
	n, err := testutil.GatherAndCount(reg, "storefront_reservation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeSuccess, outcome(nil))
	assert.Equal(t, metrics.OutcomeEmptyCart, outcome(ErrEmptyCart))
	assert.Equal(t, metrics.OutcomeInsufficientStock, outcome(&StockShortageError{}))
	assert.Equal(t, metrics.OutcomeCommitFailed, outcome(ErrCommitFailed))
	assert.Equal(t, metrics.OutcomeError, outcome(context.Canceled))
}
