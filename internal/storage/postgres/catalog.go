package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CatalogProduct is a product row as supplied by seed files and feeds.
type CatalogProduct struct {
	Slug          string              `json:"slug"`
	Category      string              `json:"category"`
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	ImageURL      string              `json:"image_url"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	Weight        string              `json:"weight"`
	StockQuantity int                 `json:"stock_quantity"`
	Featured      bool                `json:"featured"`
	Inactive      bool                `json:"inactive"`
}

// CatalogRepository writes catalog data for seeding and bulk import.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// CatalogCategory is a category row as supplied by seed files.
type CatalogCategory struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SortOrder   int    `json:"sort_order"`
}

// EnsureCategories upserts categories by name and returns their ids.
// Existing categories keep their description and sort order unless the
// input provides one.
func (r *CatalogRepository) EnsureCategories(ctx context.Context, cats []CatalogCategory) (map[string]int64, error) {
	ids := make(map[string]int64, len(cats))
	for _, c := range cats {
		if _, ok := ids[c.Name]; ok {
			continue
		}
		var id int64
		err := r.pool.QueryRow(ctx, `INSERT INTO categories (name, description, sort_order) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET
				description = COALESCE(NULLIF(EXCLUDED.description, ''), categories.description),
				sort_order = CASE WHEN EXCLUDED.sort_order = 0 THEN categories.sort_order ELSE EXCLUDED.sort_order END
			RETURNING id`, c.Name, c.Description, c.SortOrder).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("upserting category %q: %w", c.Name, err)
		}
		ids[c.Name] = id
	}
	return ids, nil
}

// Slugs calls fn for every stored product slug.
func (r *CatalogRepository) Slugs(ctx context.Context, fn func(slug string)) error {
	rows, err := r.pool.Query(ctx, `SELECT slug FROM products`)
	if err != nil {
		return fmt.Errorf("listing slugs: %w", err)
	}
	defer rows.Close()

	var slug string
	for rows.Next() {
		if err := rows.Scan(&slug); err != nil {
			return fmt.Errorf("scanning slug: %w", err)
		}
		fn(slug)
	}
	return rows.Err()
}

// CopyProducts bulk-inserts products that are known not to exist yet.
func (r *CatalogRepository) CopyProducts(ctx context.Context, products []CatalogProduct, categories map[string]int64) (int64, error) {
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"products"},
		[]string{"category_id", "name", "slug", "description", "image_url", "price",
			"discount_price", "weight", "stock_quantity", "is_active", "featured"},
		pgx.CopyFromSlice(len(products), func(i int) ([]any, error) {
			p := products[i]
			catID, ok := categories[p.Category]
			if !ok {
				return nil, fmt.Errorf("unknown category %q for %q", p.Category, p.Slug)
			}
			return []any{catID, p.Name, p.Slug, p.Description, p.ImageURL, p.Price,
				p.DiscountPrice, p.Weight, p.StockQuantity, !p.Inactive, p.Featured}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copying products: %w", err)
	}
	return n, nil
}

// UpsertProduct inserts a product or updates the existing row with the
// same slug.
func (r *CatalogRepository) UpsertProduct(ctx context.Context, p CatalogProduct, categories map[string]int64) error {
	catID, ok := categories[p.Category]
	if !ok {
		return fmt.Errorf("unknown category %q for %q", p.Category, p.Slug)
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO products (
			category_id, name, slug, description, image_url, price, discount_price,
			weight, stock_quantity, is_active, featured
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (slug) DO UPDATE SET
			category_id = EXCLUDED.category_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			image_url = EXCLUDED.image_url,
			price = EXCLUDED.price,
			discount_price = EXCLUDED.discount_price,
			weight = EXCLUDED.weight,
			stock_quantity = EXCLUDED.stock_quantity,
			is_active = EXCLUDED.is_active,
			featured = EXCLUDED.featured,
			updated_at = NOW()`,
		catID, p.Name, p.Slug, p.Description, p.ImageURL, p.Price, p.DiscountPrice,
		p.Weight, p.StockQuantity, !p.Inactive, p.Featured)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.Slug, err)
	}
	return nil
}
