package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/pkg/envelope"
)

type cartLineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity"`
}

// readCartLine reads product_id and quantity from the body, falling back to
// the query string for DELETE requests without a body.
func readCartLine(r *http.Request, defaultQty int) (cartLineRequest, error) {
	obj, err := readObject(r)
	if err != nil {
		return cartLineRequest{}, err
	}
	req := cartLineRequest{Quantity: defaultQty}
	if id, ok := obj.int("product_id"); ok {
		req.ProductID = id
	} else if id, ok := queryInt(r, "product_id"); ok {
		req.ProductID = id
	}
	if obj.has("quantity") {
		qty, ok := obj.int("quantity")
		if !ok {
			return req, fieldErrors{"quantity": "must be an integer"}
		}
		req.Quantity = int(qty)
	}
	return req, nil
}

func (h *Handler) writeCount(w http.ResponseWriter, r *http.Request, msg string) {
	user := currentUser(r.Context())
	count, err := h.cart.Count(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		e.FieldStart("cart_count")
		e.Int(count)
		e.ObjEnd()
	})
}

func (h *Handler) cartAdd(w http.ResponseWriter, r *http.Request) {
	req, err := readCartLine(r, 1)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Quantity < 1 {
		h.fail(w, r, cart.ErrInvalidQuantity)
		return
	}
	if err := h.cart.AddItem(r.Context(), currentUser(r.Context()).ID, req.ProductID, req.Quantity); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCount(w, r, "Item added to cart")
}

func (h *Handler) cartUpdate(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := cartLineRequest{}
	req.ProductID, _ = obj.int("product_id")
	qty, ok := obj.int("quantity")
	if !ok {
		h.fail(w, r, fieldErrors{"quantity": "is required"})
		return
	}
	req.Quantity = int(qty)
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.cart.UpdateItem(r.Context(), currentUser(r.Context()).ID, req.ProductID, req.Quantity); err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "Cart updated"
	if req.Quantity <= 0 {
		msg = "Item removed from cart"
	}
	h.writeCount(w, r, msg)
}

func (h *Handler) cartRemove(w http.ResponseWriter, r *http.Request) {
	req, err := readCartLine(r, 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.cart.RemoveItem(r.Context(), currentUser(r.Context()).ID, req.ProductID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCount(w, r, "Item removed from cart")
}

func (h *Handler) cartList(w http.ResponseWriter, r *http.Request) {
	items, err := h.cart.Items(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary := cart.Summarize(items, h.cart.Pricing())
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		encodeCartItems(e, items, h.cfg.ImageBaseURL)
		e.FieldStart("summary")
		encodeSummary(e, summary)
		e.ObjEnd()
	})
}

func (h *Handler) cartSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cart.Summary(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeSummary(e, summary)
	})
}

func (h *Handler) cartClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Clear(r.Context(), currentUser(r.Context()).ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeCount(w, r, "Cart cleared")
}

func (h *Handler) cartCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.cart.Count(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("count")
		e.Int(count)
		e.ObjEnd()
	})
}

func (h *Handler) cartValidate(w http.ResponseWriter, r *http.Request) {
	v, err := h.cart.Validate(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(v.Valid)
		e.FieldStart("errors")
		encodeStrings(e, v.Errors)
		e.FieldStart("summary")
		encodeSummary(e, v.Summary)
		e.ObjEnd()
	})
}
