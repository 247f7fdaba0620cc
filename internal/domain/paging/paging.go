// Package paging normalizes limit/offset pagination parameters.
package paging

const (
	// DefaultLimit is used when the caller does not supply a limit.
	DefaultLimit = 10
	// MaxLimit caps a single page.
	MaxLimit = 50
)

// Page is a clamped limit/offset pair.
type Page struct {
	Limit  int
	Offset int
}

// New clamps limit to [1, MaxLimit] (0 means DefaultLimit) and offset to >= 0.
func New(limit, offset int) Page {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// FromPageNumber converts a 1-based page number into a Page.
func FromPageNumber(page, limit int) Page {
	p := New(limit, 0)
	if page > 1 {
		p.Offset = (page - 1) * p.Limit
	}
	return p
}

// Result is one page of items together with the total row count.
type Result[T any] struct {
	Items []T
	Total int
	Page  Page
}

// HasMore reports whether rows exist beyond this page.
func (r Result[T]) HasMore() bool {
	return r.Page.Offset+len(r.Items) < r.Total
}
