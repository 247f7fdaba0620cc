package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

// Service implements cart operations for a single store configuration.
type Service struct {
	lines    Repository
	products product.Repository
	pricing  Pricing
}

// NewService creates a cart Service.
func NewService(lines Repository, products product.Repository, pricing Pricing) *Service {
	return &Service{
		lines:    lines,
		products: products,
		pricing:  pricing,
	}
}

// Pricing returns the thresholds the service summarizes with.
func (s *Service) Pricing() Pricing { return s.pricing }

func (s *Service) availableProduct(ctx context.Context, productID int64, qty int) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", productID)
	}
	if !p.Available(qty) {
		available := p.StockQuantity
		if !p.IsActive {
			available = 0
		}
		return nil, &ProductUnavailableError{
			ProductID: p.ID,
			Name:      p.Name,
			Requested: qty,
			Available: available,
		}
	}
	return p, nil
}

// AddItem adds qty units of a product, merging with an existing line. The
// combined quantity must be covered by current stock.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	current, err := s.lines.Quantity(ctx, userID, productID)
	if err != nil {
		return errors.Wrap(err, "current quantity")
	}
	if _, err := s.availableProduct(ctx, productID, current+qty); err != nil {
		return err
	}
	if err := s.lines.Add(ctx, userID, productID, qty); err != nil {
		return errors.Wrap(err, "add line")
	}
	return nil
}

// UpdateItem sets the absolute quantity of a line. A quantity of zero or
// less removes it.
func (s *Service) UpdateItem(ctx context.Context, userID, productID int64, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}
	if _, err := s.availableProduct(ctx, productID, qty); err != nil {
		return err
	}
	ok, err := s.lines.Set(ctx, userID, productID, qty)
	if err != nil {
		return errors.Wrap(err, "set quantity")
	}
	if !ok {
		return ErrItemNotFound
	}
	return nil
}

// RemoveItem deletes a line. ErrItemNotFound is returned when nothing was
// removed, so a repeated call changes nothing.
func (s *Service) RemoveItem(ctx context.Context, userID, productID int64) error {
	ok, err := s.lines.Remove(ctx, userID, productID)
	if err != nil {
		return errors.Wrap(err, "remove line")
	}
	if !ok {
		return ErrItemNotFound
	}
	return nil
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	return errors.Wrap(s.lines.Clear(ctx, userID), "clear cart")
}

// Items returns the cart lines with live product data.
func (s *Service) Items(ctx context.Context, userID int64) ([]Item, error) {
	items, err := s.lines.Items(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	return items, nil
}

// Summary returns the aggregated cart totals.
func (s *Service) Summary(ctx context.Context, userID int64) (Summary, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(items, s.pricing), nil
}

// Count returns the total quantity in the cart.
func (s *Service) Count(ctx context.Context, userID int64) (int, error) {
	n, err := s.lines.Count(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "count lines")
	}
	return n, nil
}

// Validate checks that the cart can be checked out. Problems are returned as
// human-readable messages, not as an error.
func (s *Service) Validate(ctx context.Context, userID int64) (*Validation, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	v := &Validation{Items: items, Summary: Summarize(items, s.pricing)}

	if len(items) == 0 {
		v.Errors = append(v.Errors, "Your cart is empty")
	} else if !v.Summary.MeetsMinimumOrder {
		v.Errors = append(v.Errors, fmt.Sprintf("Minimum order amount is %s", v.Summary.MinimumOrder.StringFixed(2)))
	}
	for _, it := range items {
		if it.InStock() {
			continue
		}
		switch {
		case !it.Product.IsActive || it.Product.StockQuantity <= 0:
			v.Errors = append(v.Errors, fmt.Sprintf("%s is out of stock", it.Product.Name))
		default:
			v.Errors = append(v.Errors, fmt.Sprintf("Only %d of %s available", it.Product.StockQuantity, it.Product.Name))
		}
	}
	v.Valid = len(v.Errors) == 0
	return v, nil
}
