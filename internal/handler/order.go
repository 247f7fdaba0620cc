package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/envelope"
)

type createOrderRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required,min=10,max=500"`
	PaymentMethod   string `json:"payment_method" validate:"omitempty,oneof=cod online COD ONLINE"`
	Notes           string `json:"notes" validate:"max=500"`
}

// orderCreate places an order from the current cart.
func (h *Handler) orderCreate(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := createOrderRequest{
		ShippingAddress: obj.str("shipping_address"),
		PaymentMethod:   obj.str("payment_method"),
		Notes:           obj.str("notes"),
	}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}
	method, err := order.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.fail(w, r, fieldErrors{"payment_method": "must be one of: cod, online"})
		return
	}

	o, err := h.orders.Create(r.Context(), currentUser(r.Context()).ID, order.CreateRequest{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   method,
		Notes:           req.Notes,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) orderList(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.ListByUser(r.Context(), currentUser(r.Context()).ID, pageFromQuery(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrderPage(e, res)
	})
}

func (h *Handler) orderDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := queryInt(r, "id")
	if !ok || id <= 0 {
		h.fail(w, r, fieldErrors{"id": "is required"})
		return
	}
	o, err := h.orders.Get(r.Context(), currentUser(r.Context()).ID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) orderTrack(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("order_number")
	if number == "" {
		h.fail(w, r, fieldErrors{"order_number": "is required"})
		return
	}
	o, err := h.orders.Track(r.Context(), currentUser(r.Context()).ID, number)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

type orderActionRequest struct {
	OrderID int64  `json:"order_id" validate:"required,gt=0"`
	Reason  string `json:"reason" validate:"max=500"`
}

func readOrderAction(r *http.Request) (orderActionRequest, error) {
	obj, err := readObject(r)
	if err != nil {
		return orderActionRequest{}, err
	}
	req := orderActionRequest{Reason: obj.str("reason")}
	req.OrderID, _ = obj.int("order_id")
	return req, nil
}

func (h *Handler) orderCancel(w http.ResponseWriter, r *http.Request) {
	req, err := readOrderAction(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.Cancel(r.Context(), currentUser(r.Context()).ID, req.OrderID, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Order cancelled successfully")
		e.FieldStart("order")
		encodeOrder(e, o)
		e.ObjEnd()
	})
}

func (h *Handler) orderReorder(w http.ResponseWriter, r *http.Request) {
	req, err := readOrderAction(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.orders.Reorder(r.Context(), currentUser(r.Context()).ID, req.OrderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(res.Message)
		e.FieldStart("added")
		e.Int(res.Added)
		e.FieldStart("skipped")
		encodeStrings(e, res.Skipped)
		e.ObjEnd()
	})
}
