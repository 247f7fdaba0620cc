package memstore

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*Orders)(nil)

// Orders implements order.Repository. InTx holds the store lock for the
// whole transaction and restores a snapshot on error.
type Orders struct {
	s *Store
}

func (r *Orders) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	snap := r.s.snapshot()
	if err := fn(ctx, &orderTx{s: r.s}); err != nil {
		r.s.restore(snap)
		return err
	}
	return nil
}

func (r *Orders) withItems(o order.Order) *order.Order {
	o.Items = slices.Clone(r.s.orderItems[o.ID])
	o.ItemCount = len(o.Items)
	return &o
}

func (r *Orders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.withItems(o), nil
}

func (r *Orders) GetByNumber(_ context.Context, number string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.Number == number {
			return r.withItems(o), nil
		}
	}
	return nil, order.ErrNotFound
}

func (r *Orders) List(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []order.Order
	for _, o := range r.s.orders {
		if f.UserID != 0 && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		o.ItemCount = len(r.s.orderItems[o.ID])
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b order.Order) int { return int(b.ID - a.ID) })

	total := len(out)
	lo := min(f.Page.Offset, total)
	hi := total
	if f.Page.Limit > 0 {
		hi = min(lo+f.Page.Limit, total)
	}
	return out[lo:hi], total, nil
}

type orderTx struct {
	s *Store
}

func (t *orderTx) NextSequence(context.Context) (int64, error) {
	t.s.orderSeq++
	return t.s.orderSeq, nil
}

func (t *orderTx) Insert(_ context.Context, o *order.Order) error {
	o.ID = t.s.nextID()
	o.CreatedAt = t.s.now()
	o.UpdatedAt = o.CreatedAt
	stored := *o
	stored.Items = nil
	t.s.orders[o.ID] = stored
	return nil
}

func (t *orderTx) InsertItem(_ context.Context, it *order.Item) error {
	if h := t.s.Hooks.InsertItem; h != nil {
		if err := h(it); err != nil {
			return err
		}
	}
	it.ID = t.s.nextID()
	t.s.orderItems[it.OrderID] = append(t.s.orderItems[it.OrderID], *it)
	return nil
}

func (t *orderTx) AdjustStock(_ context.Context, productID int64, delta int) error {
	if h := t.s.Hooks.AdjustStock; h != nil {
		if err := h(productID, delta); err != nil {
			return err
		}
	}
	return t.s.adjustStock(productID, delta)
}

func (t *orderTx) ClearCart(_ context.Context, userID int64) error {
	t.s.clearCart(userID)
	return nil
}

func (t *orderTx) Lock(_ context.Context, id int64) (*order.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (t *orderTx) Items(_ context.Context, orderID int64) ([]order.Item, error) {
	return slices.Clone(t.s.orderItems[orderID]), nil
}

func (t *orderTx) SetStatus(_ context.Context, id int64, status order.Status, notes string) error {
	o, ok := t.s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	o.Notes = notes
	o.UpdatedAt = t.s.now()
	t.s.orders[id] = o
	return nil
}

func (t *orderTx) SetPaymentStatus(_ context.Context, id int64, status order.PaymentStatus) error {
	o, ok := t.s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentStatus = status
	o.UpdatedAt = t.s.now()
	t.s.orders[id] = o
	return nil
}
