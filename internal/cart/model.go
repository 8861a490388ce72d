package cart

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"storefront/internal/product"

	"github.com/shopspring/decimal"
)

// Item is one requested product and its quantity.
type Item struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

// MaxLineQuantity caps the requested quantity of a single product in a cart.
const MaxLineQuantity = 1000

// Cart holds a single user's requested quantities. It lives in memory only.
type Cart struct {
	mu     sync.Mutex
	userID uint
	items  map[uint]int

	// one checkout at a time per cart
	checkout chan struct{}
}

func New(userID uint) *Cart {
	return &Cart{
		userID:   userID,
		items:    make(map[uint]int),
		checkout: make(chan struct{}, 1),
	}
}

func (c *Cart) UserID() uint {
	return c.userID
}

// add accumulates qty onto the product's entry and returns the new quantity.
func (c *Cart) add(productID uint, qty int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.items[productID]
	if qty > MaxLineQuantity-current {
		return current, fmt.Errorf("%w: at most %d per product", ErrInvalidQuantity, MaxLineQuantity)
	}
	c.items[productID] = current + qty
	return c.items[productID], nil
}

func (c *Cart) remove(productID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[productID]; !ok {
		return false
	}
	delete(c.items, productID)
	return true
}

// Quantity returns the requested quantity for productID, 0 when absent.
func (c *Cart) Quantity(productID uint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[productID]
}

// Items returns a snapshot ordered by product id.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]Item, 0, len(c.items))
	for id, qty := range c.items {
		items = append(items, Item{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(items, func(a, b Item) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return items
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return c.Len() == 0
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
}

// LockCheckout waits until no other checkout holds the cart. The returned
// func releases it and is safe to call more than once.
func (c *Cart) LockCheckout(ctx context.Context) (func(), error) {
	select {
	case c.checkout <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-c.checkout })
	}, nil
}

// Consume subtracts checked-out quantities. Anything added after the snapshot
// was taken stays in the cart.
func (c *Cart) Consume(items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, it := range items {
		left := c.items[it.ProductID] - it.Quantity
		if left <= 0 {
			delete(c.items, it.ProductID)
			continue
		}
		c.items[it.ProductID] = left
	}
}

// Line is a cart entry joined with the current catalog data.
type Line struct {
	Product  product.Product `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type View struct {
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}
