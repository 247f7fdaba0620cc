package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/paging"
)

var (
	// ErrNotFound is returned when a requested product does not exist or is inactive.
	ErrNotFound = errors.New("product not found")
	// ErrCategoryNotFound is returned when a requested category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrInsufficientStock is returned when a stock adjustment would take
	// stock_quantity below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockError is a rejected stock adjustment. It carries the stock left at
// the time of the attempt and matches ErrInsufficientStock with errors.Is.
type StockError struct {
	ProductID int64
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: %d left", e.ProductID, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

var hundred = decimal.NewFromInt(100)

// Product represents a catalog item available for purchase.
type Product struct {
	ID            int64
	CategoryID    int64
	CategoryName  string
	Name          string
	Slug          string
	Description   string
	ImageURL      string
	Price         decimal.Decimal
	DiscountPrice decimal.NullDecimal
	Weight        string
	StockQuantity int
	IsActive      bool
	Featured      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasDiscount reports whether a discount price is set and lower than the
// regular price.
func (p Product) HasDiscount() bool {
	return p.DiscountPrice.Valid && p.DiscountPrice.Decimal.LessThan(p.Price)
}

// FinalPrice is the unit price a customer pays.
func (p Product) FinalPrice() decimal.Decimal {
	if p.HasDiscount() {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

// DiscountPercentage is the discount as a rounded whole percent of Price.
func (p Product) DiscountPercentage() int {
	if !p.HasDiscount() || p.Price.IsZero() {
		return 0
	}
	pct := p.Price.Sub(p.DiscountPrice.Decimal).Div(p.Price).Mul(hundred)
	return int(pct.Round(0).IntPart())
}

// InStock reports whether any units are available.
func (p Product) InStock() bool {
	return p.StockQuantity > 0
}

// Available reports whether qty units can be sold right now.
func (p Product) Available(qty int) bool {
	return p.IsActive && p.StockQuantity >= qty
}

// Category groups products on the storefront.
type Category struct {
	ID           int64
	Name         string
	Description  string
	IsActive     bool
	SortOrder    int
	ProductCount int
}

// Sort enumerates the supported catalog orderings.
type Sort string

const (
	SortNewest    Sort = "newest"
	SortPriceAsc  Sort = "price_asc"
	SortPriceDesc Sort = "price_desc"
	SortName      Sort = "name"
)

// ParseSort maps a query value to a Sort, defaulting to SortNewest.
func ParseSort(s string) Sort {
	switch v := Sort(s); v {
	case SortPriceAsc, SortPriceDesc, SortName:
		return v
	default:
		return SortNewest
	}
}

// Filter narrows a catalog listing. Zero values mean "no constraint".
type Filter struct {
	CategoryID   int64
	Search       string
	FeaturedOnly bool
	InStockOnly  bool
	Sort         Sort
	Page         paging.Page
}

// Repository defines catalog persistence. Read methods only return active
// products; GetByID returns ErrNotFound for inactive ones.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, int, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Related(ctx context.Context, p *Product, limit int) ([]Product, error)
	Categories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	// UpdateStock applies delta to stock_quantity in a single conditional
	// statement. It returns ErrInsufficientStock when the result would be
	// negative and ErrNotFound when the product does not exist.
	UpdateStock(ctx context.Context, id int64, delta int) error
}
