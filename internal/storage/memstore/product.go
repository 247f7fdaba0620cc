package memstore

import (
	"context"
	"slices"
	"strings"

	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Repository = (*Products)(nil)

// Products implements product.Repository.
type Products struct {
	s *Store
}

func (r *Products) List(_ context.Context, f product.Filter) ([]product.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q := strings.ToLower(f.Search)
	var out []product.Product
	for _, p := range r.s.products {
		switch {
		case !p.IsActive:
			continue
		case f.CategoryID != 0 && p.CategoryID != f.CategoryID:
			continue
		case f.FeaturedOnly && !p.Featured:
			continue
		case f.InStockOnly && !p.InStock():
			continue
		case q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q):
			continue
		}
		p.CategoryName = r.s.categories[p.CategoryID].Name
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, b product.Product) int {
		switch f.Sort {
		case product.SortPriceAsc:
			if c := a.FinalPrice().Cmp(b.FinalPrice()); c != 0 {
				return c
			}
		case product.SortPriceDesc:
			if c := b.FinalPrice().Cmp(a.FinalPrice()); c != 0 {
				return c
			}
		case product.SortName:
			if c := strings.Compare(a.Name, b.Name); c != 0 {
				return c
			}
		}
		// Newest first, IDs are assigned in creation order.
		return int(b.ID - a.ID)
	})

	total := len(out)
	lo := min(f.Page.Offset, total)
	hi := total
	if f.Page.Limit > 0 {
		hi = min(lo+f.Page.Limit, total)
	}
	return out[lo:hi], total, nil
}

func (r *Products) get(id int64) (*product.Product, error) {
	p, ok := r.s.products[id]
	if !ok || !p.IsActive {
		return nil, product.ErrNotFound
	}
	p.CategoryName = r.s.categories[p.CategoryID].Name
	return &p, nil
}

func (r *Products) GetByID(_ context.Context, id int64) (*product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.get(id)
}

func (r *Products) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, err := r.get(id); err == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *Products) Related(_ context.Context, p *product.Product, limit int) ([]product.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []product.Product
	for _, other := range r.s.products {
		if other.ID == p.ID || other.CategoryID != p.CategoryID || !other.IsActive {
			continue
		}
		out = append(out, other)
	}
	slices.SortFunc(out, func(a, b product.Product) int {
		if a.InStock() != b.InStock() {
			if a.InStock() {
				return -1
			}
			return 1
		}
		return int(b.ID - a.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Products) Categories(context.Context) ([]product.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []product.Category
	for _, c := range r.s.categories {
		if !c.IsActive {
			continue
		}
		c.ProductCount = r.countActive(c.ID)
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b product.Category) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (r *Products) countActive(categoryID int64) int {
	n := 0
	for _, p := range r.s.products {
		if p.CategoryID == categoryID && p.IsActive {
			n++
		}
	}
	return n
}

func (r *Products) GetCategory(_ context.Context, id int64) (*product.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok || !c.IsActive {
		return nil, product.ErrCategoryNotFound
	}
	c.ProductCount = r.countActive(c.ID)
	return &c, nil
}

func (r *Products) UpdateStock(_ context.Context, id int64, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.adjustStock(id, delta)
}

func (s *Store) adjustStock(id int64, delta int) error {
	p, ok := s.products[id]
	if !ok {
		return product.ErrNotFound
	}
	if p.StockQuantity+delta < 0 {
		return &product.StockError{ProductID: id, Available: p.StockQuantity}
	}
	p.StockQuantity += delta
	p.UpdatedAt = s.now()
	s.products[id] = p
	return nil
}
