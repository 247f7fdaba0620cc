package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/pkg/envelope"
)

type contactRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Phone   string `json:"phone" validate:"max=20"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,min=10,max=5000"`
}

func (h *Handler) contactSubmit(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := contactRequest{
		Name:    obj.str("name"),
		Email:   obj.str("email"),
		Phone:   obj.str("phone"),
		Subject: obj.str("subject"),
		Message: obj.str("message"),
	}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.contact.Submit(r.Context(), &contact.Message{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Subject: req.Subject,
		Message: req.Message,
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeMessage(e, "Thank you for contacting us. We will get back to you soon.")
	})
}

type newsletterRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

func (h *Handler) newsletter(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := newsletterRequest{Email: obj.str("email")}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.contact.Subscribe(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeMessage(e, "Subscribed to newsletter")
	})
}
