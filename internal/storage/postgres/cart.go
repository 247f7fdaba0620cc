package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Items returns the user's lines joined with live product rows.
func (r *CartRepository) Items(ctx context.Context, userID int64) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+productColumns+", ci.quantity"+` FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE ci.user_id = $1
		ORDER BY ci.created_at, p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	defer rows.Close()

	var items []cart.Item
	for rows.Next() {
		it := cart.Item{UserID: userID}
		it.Product, err = scanProduct(rows, &it.Quantity)
		if err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Quantity returns the quantity of one line, 0 when absent.
func (r *CartRepository) Quantity(ctx context.Context, userID, productID int64) (int, error) {
	var qty int
	err := r.pool.QueryRow(ctx,
		`SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2`,
		userID, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting cart quantity: %w", err)
	}
	return qty, nil
}

// Add upserts the line, summing quantities on conflict.
func (r *CartRepository) Add(ctx context.Context, userID, productID int64, qty int) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		userID, productID, qty)
	if err != nil {
		return fmt.Errorf("adding cart item: %w", err)
	}
	return nil
}

// Set overwrites the quantity of an existing line.
func (r *CartRepository) Set(ctx context.Context, userID, productID int64, qty int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE cart_items SET quantity = $3, updated_at = NOW()
		WHERE user_id = $1 AND product_id = $2`, userID, productID, qty)
	if err != nil {
		return false, fmt.Errorf("updating cart item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Remove deletes one line.
func (r *CartRepository) Remove(ctx context.Context, userID, productID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return false, fmt.Errorf("removing cart item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Clear deletes all of the user's lines.
func (r *CartRepository) Clear(ctx context.Context, userID int64) error {
	return clearCart(ctx, r.pool, userID)
}

func clearCart(ctx context.Context, q querier, userID int64) error {
	if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

// Count returns the total quantity across the user's lines.
func (r *CartRepository) Count(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting cart: %w", err)
	}
	return n, nil
}
