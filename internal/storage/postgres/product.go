package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

const productColumns = `p.id, p.category_id, c.name, p.name, p.slug, p.description, p.image_url,
	p.price, p.discount_price, p.weight, p.stock_quantity, p.is_active, p.featured,
	p.created_at, p.updated_at`

const productFrom = ` FROM products p JOIN categories c ON c.id = p.category_id`

var productOrder = map[product.Sort]string{
	product.SortNewest:    "p.created_at DESC, p.id DESC",
	product.SortPriceAsc:  "LEAST(p.discount_price, p.price) ASC, p.id",
	product.SortPriceDesc: "LEAST(p.discount_price, p.price) DESC, p.id",
	product.SortName:      "p.name ASC, p.id",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func scanProduct(row pgx.Row, extra ...any) (product.Product, error) {
	var p product.Product
	dest := append([]any{
		&p.ID, &p.CategoryID, &p.CategoryName, &p.Name, &p.Slug, &p.Description, &p.ImageURL,
		&p.Price, &p.DiscountPrice, &p.Weight, &p.StockQuantity, &p.IsActive, &p.Featured,
		&p.CreatedAt, &p.UpdatedAt,
	}, extra...)
	err := row.Scan(dest...)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]product.Product, error) {
	defer rows.Close()
	var out []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// List returns active products matching f and the total match count.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, int, error) {
	where := []string{"p.is_active", "c.is_active"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.CategoryID != 0 {
		where = append(where, "p.category_id = "+arg(f.CategoryID))
	}
	if f.FeaturedOnly {
		where = append(where, "p.featured")
	}
	if f.InStockOnly {
		where = append(where, "p.stock_quantity > 0")
	}
	if f.Search != "" {
		n := arg("%" + likeEscaper.Replace(f.Search) + "%")
		where = append(where, "(p.name ILIKE "+n+" OR p.description ILIKE "+n+")")
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+productFrom+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	order, ok := productOrder[f.Sort]
	if !ok {
		order = productOrder[product.SortNewest]
	}
	query := "SELECT " + productColumns + productFrom + cond + " ORDER BY " + order
	if f.Page.Limit > 0 {
		query += " LIMIT " + arg(f.Page.Limit)
	}
	query += " OFFSET " + arg(f.Page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scanning products: %w", err)
	}
	return products, total, nil
}

// GetByID returns a single active product. It returns product.ErrNotFound
// when no matching product exists.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+productColumns+productFrom+" WHERE p.id = $1 AND p.is_active", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns the active products among ids. Missing ids are skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+productColumns+productFrom+" WHERE p.id = ANY($1) AND p.is_active ORDER BY p.id", ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning products: %w", err)
	}
	return products, nil
}

// Related returns active products from p's category, in-stock ones first.
func (r *ProductRepository) Related(ctx context.Context, p *product.Product, limit int) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+productColumns+productFrom+`
		WHERE p.category_id = $1 AND p.id <> $2 AND p.is_active
		ORDER BY (p.stock_quantity > 0) DESC, p.featured DESC, p.created_at DESC
		LIMIT $3`, p.CategoryID, p.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing related products: %w", err)
	}
	products, err := collectProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("scanning products: %w", err)
	}
	return products, nil
}

const categoryQuery = `SELECT c.id, c.name, c.description, c.is_active, c.sort_order,
	COUNT(p.id) FILTER (WHERE p.is_active)
FROM categories c
LEFT JOIN products p ON p.category_id = c.id`

func scanCategory(row pgx.Row) (product.Category, error) {
	var c product.Category
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.SortOrder, &c.ProductCount)
	return c, err
}

// Categories returns active categories with active product counts.
func (r *ProductRepository) Categories(ctx context.Context) ([]product.Category, error) {
	rows, err := r.pool.Query(ctx, categoryQuery+`
		WHERE c.is_active
		GROUP BY c.id
		ORDER BY c.sort_order, c.name`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var out []product.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCategory returns an active category by id.
func (r *ProductRepository) GetCategory(ctx context.Context, id int64) (*product.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, categoryQuery+`
		WHERE c.id = $1 AND c.is_active
		GROUP BY c.id`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("getting category %d: %w", id, err)
	}
	return &c, nil
}

// UpdateStock applies delta with a single conditional UPDATE.
func (r *ProductRepository) UpdateStock(ctx context.Context, id int64, delta int) error {
	return adjustStock(ctx, r.pool, id, delta)
}

// adjustStock never takes stock below zero: the bound check and the write
// are one statement.
func adjustStock(ctx context.Context, q querier, id int64, delta int) error {
	tag, err := q.Exec(ctx, `UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2 >= 0`, id, delta)
	if err != nil {
		return fmt.Errorf("updating stock of product %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var left int
	if err := q.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE id = $1`, id).Scan(&left); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("checking product %d: %w", id, err)
	}
	return &product.StockError{ProductID: id, Available: left}
}
