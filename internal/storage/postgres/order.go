package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const orderColumns = `o.id, o.order_number, o.user_id, o.total_amount, o.discount_amount,
	o.shipping_amount, o.final_amount, o.payment_method, o.status, o.payment_status,
	o.shipping_address, o.notes, o.created_at, o.updated_at,
	(SELECT COUNT(*) FROM order_items i WHERE i.order_id = o.id)`

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// InTx runs fn inside a database transaction. The transaction is rolled
// back unless fn returns nil and the commit succeeds.
func (r *OrderRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &orderTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.TotalAmount, &o.DiscountAmount,
		&o.ShippingAmount, &o.FinalAmount, &o.PaymentMethod, &o.Status, &o.PaymentStatus,
		&o.ShippingAddress, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
		&o.ItemCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) getWithItems(ctx context.Context, where string, arg any) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders o WHERE "+where, arg))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	if o.Items, err = listItems(ctx, r.pool, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return r.getWithItems(ctx, "o.id = $1", id)
}

// GetByNumber returns an order with its items.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getWithItems(ctx, "o.order_number = $1", number)
}

// List returns orders newest first, without items.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != 0 {
		where = append(where, "o.user_id = "+arg(f.UserID))
	}
	if f.Status != "" {
		where = append(where, "o.status = "+arg(string(f.Status)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders o"+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	query := "SELECT " + orderColumns + " FROM orders o" + cond + " ORDER BY o.created_at DESC, o.id DESC"
	if f.Page.Limit > 0 {
		query += " LIMIT " + arg(f.Page.Limit)
	}
	query += " OFFSET " + arg(f.Page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating orders: %w", err)
	}
	return out, total, nil
}

func listItems(ctx context.Context, q querier, orderID int64) ([]order.Item, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, product_name, weight, price, quantity, total_amount
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	var items []order.Item
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Weight,
			&it.Price, &it.Quantity, &it.TotalAmount); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// orderTx implements order.Tx on a pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) NextSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("drawing order number: %w", err)
	}
	return seq, nil
}

func (t *orderTx) Insert(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO orders (
			order_number, user_id, total_amount, discount_amount, shipping_amount, final_amount,
			payment_method, status, payment_status, shipping_address, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		o.Number, o.UserID, o.TotalAmount, o.DiscountAmount, o.ShippingAmount, o.FinalAmount,
		string(o.PaymentMethod), string(o.Status), string(o.PaymentStatus), o.ShippingAddress, o.Notes,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order %q: %w", o.Number, err)
	}
	return nil
}

func (t *orderTx) InsertItem(ctx context.Context, it *order.Item) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO order_items (
			order_id, product_id, product_name, weight, price, quantity, total_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		it.OrderID, it.ProductID, it.ProductName, it.Weight, it.Price, it.Quantity, it.TotalAmount,
	).Scan(&it.ID)
	if err != nil {
		return fmt.Errorf("inserting order item: %w", err)
	}
	return nil
}

func (t *orderTx) AdjustStock(ctx context.Context, productID int64, delta int) error {
	return adjustStock(ctx, t.tx, productID, delta)
}

func (t *orderTx) ClearCart(ctx context.Context, userID int64) error {
	return clearCart(ctx, t.tx, userID)
}

func (t *orderTx) Lock(ctx context.Context, id int64) (*order.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders o WHERE o.id = $1 FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("locking order %d: %w", id, err)
	}
	return o, nil
}

func (t *orderTx) Items(ctx context.Context, orderID int64) ([]order.Item, error) {
	return listItems(ctx, t.tx, orderID)
}

func (t *orderTx) SetStatus(ctx context.Context, id int64, status order.Status, notes string) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2, notes = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), notes)
	if err != nil {
		return fmt.Errorf("updating order %d status: %w", id, err)
	}
	return nil
}

func (t *orderTx) SetPaymentStatus(ctx context.Context, id int64, status order.PaymentStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return fmt.Errorf("updating order %d payment status: %w", id, err)
	}
	return nil
}
