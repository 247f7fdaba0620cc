package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/envelope"
)

func (h *Handler) adminOrders(w http.ResponseWriter, r *http.Request) {
	f := order.ListFilter{Page: pageFromQuery(r)}
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := order.ParseStatus(s)
		if err != nil {
			h.fail(w, r, fieldErrors{"status": "is invalid"})
			return
		}
		f.Status = st
	}
	if id, ok := queryInt(r, "user_id"); ok {
		f.UserID = id
	}

	res, err := h.orders.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrderPage(e, res)
	})
}

func (h *Handler) adminOrderStatus(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, ok := obj.int("order_id")
	if !ok || id <= 0 {
		h.fail(w, r, fieldErrors{"order_id": "is required"})
		return
	}
	st, err := order.ParseStatus(obj.str("status"))
	if err != nil {
		h.fail(w, r, fieldErrors{"status": "is invalid"})
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), id, st)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) adminPaymentStatus(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, ok := obj.int("order_id")
	if !ok || id <= 0 {
		h.fail(w, r, fieldErrors{"order_id": "is required"})
		return
	}
	ps, err := order.ParsePaymentStatus(obj.str("payment_status"))
	if err != nil {
		h.fail(w, r, fieldErrors{"payment_status": "is invalid"})
		return
	}

	o, err := h.orders.UpdatePaymentStatus(r.Context(), id, ps)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}
