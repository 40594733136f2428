package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product carries the shared inventory quantity that orders claim and
// release. Quantity is only mutated through conditional adjustments inside
// an atomic unit.
type Product struct {
	ID        string
	Name      string
	Price     decimal.Decimal
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the product fields, returning a ValidationError listing
// every violated rule.
func (p Product) Validate() error {
	var msgs []string
	if p.Name == "" {
		msgs = append(msgs, "product name is required")
	}
	if !p.Price.IsPositive() {
		msgs = append(msgs, "price must be a positive value")
	}
	if p.Quantity < 0 {
		msgs = append(msgs, "quantity in stock cannot be negative")
	}
	if len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}
