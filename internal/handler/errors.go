package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/envelope"
)

// statusOf maps domain failures to HTTP status codes. Unknown errors are
// internal.
func statusOf(err error) int {
	var (
		fe  fieldErrors
		ve  *order.ValidationError
		pue *cart.ProductUnavailableError
		te  *order.TransitionError
	)
	switch {
	case errors.As(err, &fe), errors.As(err, &ve), errors.As(err, &pue), errors.As(err, &te):
		return http.StatusBadRequest
	case errors.Is(err, errBadJSON),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, product.ErrInsufficientStock),
		errors.Is(err, product.ErrSearchTooShort),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrAddressRequired),
		errors.Is(err, auth.ErrInvalidMobile),
		errors.Is(err, auth.ErrInvalidOTP),
		errors.Is(err, auth.ErrNameRequired),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, contact.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidSession),
		errors.Is(err, auth.ErrNotVerified),
		errors.Is(err, auth.ErrInvalidAPIKey):
		return http.StatusUnauthorized
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, product.ErrCategoryNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrMobileTaken),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, contact.ErrAlreadySubscribed):
		return http.StatusConflict
	case errors.Is(err, auth.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an error envelope. Internal errors are logged and
// replaced by a generic message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg := "Internal server error"
		if errors.Is(err, order.ErrCreateFailed) {
			msg = "Failed to create order, please try again"
		}
		envelope.Error(w, r, status, msg, nil)
		return
	}

	var fe fieldErrors
	if errors.As(err, &fe) {
		envelope.Error(w, r, status, "Validation failed", fe)
		return
	}
	var ve *order.ValidationError
	if errors.As(err, &ve) {
		envelope.Error(w, r, status, "Cart validation failed", map[string]string{"cart": ve.Error()})
		return
	}
	envelope.Error(w, r, status, capitalize(err.Error()), nil)
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
