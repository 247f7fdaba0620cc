package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/envelope"
)

func (h *Handler) productList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := product.Filter{
		Search:       q.Get("search"),
		FeaturedOnly: queryBool(r, "featured"),
		InStockOnly:  queryBool(r, "in_stock"),
		Sort:         product.ParseSort(q.Get("sort")),
		Page:         pageFromQuery(r),
	}
	if id, ok := queryInt(r, "category_id"); ok && id > 0 {
		f.CategoryID = id
	}

	res, err := h.products.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeProductPage(e, res, h.cfg.ImageBaseURL)
	})
}

func (h *Handler) productFeatured(w http.ResponseWriter, r *http.Request) {
	limit, _ := queryInt(r, "limit")
	ps, err := h.products.Featured(r.Context(), int(limit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeProducts(e, ps, h.cfg.ImageBaseURL)
	})
}

func (h *Handler) productDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt(r, "id")
	if !ok || id <= 0 {
		h.fail(w, r, fieldErrors{"id": "is required"})
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, p, h.cfg.ImageBaseURL)
	})
}

func (h *Handler) productSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	res, err := h.products.Search(r.Context(), q, pageFromQuery(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("query")
		e.Str(q)
		e.FieldStart("products")
		encodeProducts(e, res.Items, h.cfg.ImageBaseURL)
		e.FieldStart("pagination")
		encodePagination(e, res.Total, res.Page, res.HasMore())
		e.ObjEnd()
	})
}

func (h *Handler) productCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.products.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range cats {
			encodeCategory(e, &cats[i])
		}
		e.ArrEnd()
	})
}

func (h *Handler) productsByCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt(r, "category_id")
	if !ok || id <= 0 {
		h.fail(w, r, fieldErrors{"category_id": "is required"})
		return
	}
	cat, res, err := h.products.ByCategory(r.Context(), id, product.ParseSort(r.URL.Query().Get("sort")), pageFromQuery(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("category")
		encodeCategory(e, cat)
		e.FieldStart("products")
		encodeProducts(e, res.Items, h.cfg.ImageBaseURL)
		e.FieldStart("pagination")
		encodePagination(e, res.Total, res.Page, res.HasMore())
		e.ObjEnd()
	})
}

func (h *Handler) productRelated(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt(r, "product_id")
	if !ok || id <= 0 {
		h.fail(w, r, fieldErrors{"product_id": "is required"})
		return
	}
	limit, _ := queryInt(r, "limit")
	ps, err := h.products.Related(r.Context(), id, int(limit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeProducts(e, ps, h.cfg.ImageBaseURL)
	})
}
