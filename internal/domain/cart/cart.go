// Package cart implements the per-user shopping cart and its pricing summary.
package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

var (
	// ErrItemNotFound is returned when the (user, product) line does not exist.
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrInvalidQuantity is returned when adding fewer than one unit.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// ProductUnavailableError reports that the requested quantity of a product
// cannot be sold. It matches product.ErrInsufficientStock with errors.Is.
type ProductUnavailableError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *ProductUnavailableError) Error() string {
	if e.Available <= 0 {
		return fmt.Sprintf("%s is out of stock", e.Name)
	}
	return fmt.Sprintf("only %d of %s available, requested %d", e.Available, e.Name, e.Requested)
}

func (e *ProductUnavailableError) Unwrap() error { return product.ErrInsufficientStock }

// Item is a cart line joined with the live product row.
type Item struct {
	UserID   int64
	Product  product.Product
	Quantity int
}

// LineTotal is the final unit price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.Product.FinalPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// InStock reports whether the product can currently cover this line.
func (i Item) InStock() bool {
	return i.Product.Available(i.Quantity)
}

// Pricing holds the store-wide thresholds used by Summarize.
type Pricing struct {
	FreeShippingThreshold decimal.Decimal
	ShippingCharge        decimal.Decimal
	MinimumOrder          decimal.Decimal
}

// Summary aggregates a cart for display and checkout.
type Summary struct {
	ItemCount     int
	TotalQuantity int
	// MRPTotal is the sum of regular prices before product discounts.
	MRPTotal       decimal.Decimal
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	Shipping       decimal.Decimal
	Total          decimal.Decimal

	HasOutOfStock     bool
	MeetsMinimumOrder bool

	FreeShippingThreshold decimal.Decimal
	MinimumOrder          decimal.Decimal
}

// Summarize computes a Summary. Shipping is free exactly when the subtotal
// reaches the free-shipping threshold.
func Summarize(items []Item, p Pricing) Summary {
	s := Summary{
		ItemCount:             len(items),
		MRPTotal:              decimal.Zero,
		Subtotal:              decimal.Zero,
		DiscountAmount:        decimal.Zero,
		FreeShippingThreshold: p.FreeShippingThreshold,
		MinimumOrder:          p.MinimumOrder,
	}
	for _, it := range items {
		qty := decimal.NewFromInt(int64(it.Quantity))
		s.TotalQuantity += it.Quantity
		s.MRPTotal = s.MRPTotal.Add(it.Product.Price.Mul(qty))
		s.Subtotal = s.Subtotal.Add(it.LineTotal())
		if !it.InStock() {
			s.HasOutOfStock = true
		}
	}
	s.DiscountAmount = s.MRPTotal.Sub(s.Subtotal)

	s.Shipping = p.ShippingCharge
	if s.Subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		s.Shipping = decimal.Zero
	}
	s.Total = s.Subtotal.Add(s.Shipping)
	s.MeetsMinimumOrder = s.Subtotal.GreaterThanOrEqual(p.MinimumOrder)
	return s
}

// Validation is the result of the pre-checkout gate.
type Validation struct {
	Valid   bool
	Errors  []string
	Items   []Item
	Summary Summary
}

// Repository persists cart lines.
type Repository interface {
	// Items returns the user's lines joined with product data, oldest first.
	Items(ctx context.Context, userID int64) ([]Item, error)
	// Quantity returns the quantity currently in the cart, 0 if absent.
	Quantity(ctx context.Context, userID, productID int64) (int, error)
	// Add inserts the line or adds qty to the existing quantity.
	Add(ctx context.Context, userID, productID int64, qty int) error
	// Set overwrites the quantity of an existing line. It reports false when
	// the line does not exist.
	Set(ctx context.Context, userID, productID int64, qty int) (bool, error)
	// Remove deletes a line and reports whether it existed.
	Remove(ctx context.Context, userID, productID int64) (bool, error)
	Clear(ctx context.Context, userID int64) error
	// Count returns the total quantity across all lines.
	Count(ctx context.Context, userID int64) (int, error)
}
