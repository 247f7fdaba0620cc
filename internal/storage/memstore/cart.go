package memstore

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/cart"
)

var _ cart.Repository = (*Cart)(nil)

// Cart implements cart.Repository.
type Cart struct {
	s *Store
}

func (r *Cart) Items(_ context.Context, userID int64) ([]cart.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type entry struct {
		item cart.Item
		seq  int64
	}
	var entries []entry
	for k, line := range r.s.cart {
		if k.userID != userID {
			continue
		}
		p, ok := r.s.products[k.productID]
		if !ok {
			continue
		}
		p.CategoryName = r.s.categories[p.CategoryID].Name
		entries = append(entries, entry{
			item: cart.Item{UserID: userID, Product: p, Quantity: line.qty},
			seq:  line.seq,
		})
	}
	slices.SortFunc(entries, func(a, b entry) int { return int(a.seq - b.seq) })

	out := make([]cart.Item, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out, nil
}

func (r *Cart) Quantity(_ context.Context, userID, productID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.cart[cartKey{userID, productID}].qty, nil
}

func (r *Cart) Add(_ context.Context, userID, productID int64, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := cartKey{userID, productID}
	line, ok := r.s.cart[k]
	if !ok {
		line.seq = r.s.nextID()
	}
	line.qty += qty
	r.s.cart[k] = line
	return nil
}

func (r *Cart) Set(_ context.Context, userID, productID int64, qty int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := cartKey{userID, productID}
	line, ok := r.s.cart[k]
	if !ok {
		return false, nil
	}
	line.qty = qty
	r.s.cart[k] = line
	return true, nil
}

func (r *Cart) Remove(_ context.Context, userID, productID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := cartKey{userID, productID}
	if _, ok := r.s.cart[k]; !ok {
		return false, nil
	}
	delete(r.s.cart, k)
	return true, nil
}

func (r *Cart) Clear(_ context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.clearCart(userID)
	return nil
}

func (s *Store) clearCart(userID int64) {
	for k := range s.cart {
		if k.userID == userID {
			delete(s.cart, k)
		}
	}
}

func (r *Cart) Count(_ context.Context, userID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for k, line := range r.s.cart {
		if k.userID == userID {
			n += line.qty
		}
	}
	return n, nil
}
