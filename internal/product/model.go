package product

import "github.com/shopspring/decimal"

type Product struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Description string          `json:"description"`
}

// InStock reports whether at least one unit is available.
func (p *Product) InStock() bool {
	return p.Stock > 0
}

type NewProductInput struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Description string          `json:"description"`
}

// UpdateProductInput is a partial update: nil fields keep their stored value.
type UpdateProductInput struct {
	Name        *string          `json:"name,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
	Description *string          `json:"description,omitempty"`
}

func (in UpdateProductInput) IsEmpty() bool {
	return in.Name == nil &&
		in.Price == nil &&
		in.Stock == nil &&
		in.Description == nil
}
