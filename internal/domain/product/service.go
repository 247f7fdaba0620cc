package product

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/paging"
)

// MinSearchLength is the shortest accepted search query.
const MinSearchLength = 2

// ErrSearchTooShort is returned for search queries under MinSearchLength runes.
var ErrSearchTooShort = errors.New("search query must be at least 2 characters")

// Service exposes storefront catalog reads on top of a Repository.
type Service struct {
	repo Repository
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns one page of products matching f.
func (s *Service) List(ctx context.Context, f Filter) (paging.Result[Product], error) {
	f.Page = paging.New(f.Page.Limit, f.Page.Offset)
	f.Sort = ParseSort(string(f.Sort))
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return paging.Result[Product]{}, errors.Wrap(err, "list products")
	}
	return paging.Result[Product]{Items: items, Total: total, Page: f.Page}, nil
}

// Featured returns up to limit featured, in-stock products.
func (s *Service) Featured(ctx context.Context, limit int) ([]Product, error) {
	res, err := s.List(ctx, Filter{
		FeaturedOnly: true,
		InStockOnly:  true,
		Page:         paging.New(limit, 0),
	})
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Get returns an active product by id.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return p, nil
}

// Search matches q against product names and descriptions.
func (s *Service) Search(ctx context.Context, q string, page paging.Page) (paging.Result[Product], error) {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MinSearchLength {
		return paging.Result[Product]{}, ErrSearchTooShort
	}
	return s.List(ctx, Filter{Search: q, Page: page})
}

// Categories returns active categories with their active product counts.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	cats, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return cats, nil
}

// ByCategory lists products of an existing category together with the
// category itself.
func (s *Service) ByCategory(ctx context.Context, categoryID int64, sort Sort, page paging.Page) (*Category, paging.Result[Product], error) {
	cat, err := s.repo.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, paging.Result[Product]{}, errors.Wrapf(err, "get category %d", categoryID)
	}
	res, err := s.List(ctx, Filter{CategoryID: categoryID, Sort: sort, Page: page})
	if err != nil {
		return nil, paging.Result[Product]{}, err
	}
	return cat, res, nil
}

// Related returns products from the same category as productID, excluding it.
func (s *Service) Related(ctx context.Context, productID int64, limit int) ([]Product, error) {
	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", productID)
	}
	if limit <= 0 || limit > 12 {
		limit = 4
	}
	related, err := s.repo.Related(ctx, p, limit)
	if err != nil {
		return nil, errors.Wrap(err, "related products")
	}
	return related, nil
}
