package order

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var statuses = map[Status]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
	StatusCancelled:  true,
}

func (s Status) Valid() bool {
	return statuses[s]
}

// ParseStatus accepts any casing and surrounding spaces.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// LineItem is the product snapshot taken at checkout. Later catalog edits do
// not change it.
type LineItem struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
}

func (l LineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
}

type Order struct {
	ID        uint       `json:"id"`
	UserID    uint       `json:"user_id"`
	Items     []LineItem `json:"items"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// MarshalJSON adds the computed total to the API representation.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return json.Marshal(struct {
		plain
		Total decimal.Decimal `json:"total"`
	}{plain(o), o.Total()})
}

type Outcome string

const (
	OutcomeUpdated          Outcome = "updated"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeAlreadyCancelled Outcome = "already_cancelled"
)

// Transition reports what SetStatus did.
type Transition struct {
	Order    *Order  `json:"order"`
	Previous Status  `json:"previous"`
	Outcome  Outcome `json:"outcome"`
}

func encodeItems(items []LineItem) (string, error) {
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeItems reads prices written either as JSON strings or numbers.
func decodeItems(raw string) ([]LineItem, error) {
	items := make([]LineItem, 0)
	if strings.TrimSpace(raw) == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}
