package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/pkg/envelope"
)

type otpRequest struct {
	Mobile  string `json:"mobile" validate:"required"`
	Purpose string `json:"purpose" validate:"omitempty,oneof=login registration"`
}

func parsePurpose(s string) auth.Purpose {
	if s == "" {
		return auth.PurposeLogin
	}
	p, _ := auth.ParsePurpose(s)
	return p
}

func (h *Handler) sendOTP(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := otpRequest{Mobile: obj.str("mobile"), Purpose: obj.str("purpose")}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.auth.SendOTP(r.Context(), req.Mobile, parsePurpose(req.Purpose))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("OTP sent successfully")
		e.FieldStart("expires_in")
		e.Int(int(res.ExpiresIn.Seconds()))
		if res.Code != "" {
			e.FieldStart("otp")
			e.Str(res.Code)
		}
		e.ObjEnd()
	})
}

type verifyRequest struct {
	Mobile  string `json:"mobile" validate:"required"`
	OTP     string `json:"otp" validate:"required,numeric,min=4,max=8"`
	Purpose string `json:"purpose" validate:"omitempty,oneof=login registration"`
}

// verifyOTP is a standalone check: a matching code is consumed and no
// session is opened. Login and register verify the code themselves, so
// clients must not call this before them with the same code.
func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := verifyRequest{Mobile: obj.str("mobile"), OTP: obj.str("otp"), Purpose: obj.str("purpose")}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}

	ok, err := h.auth.VerifyOTP(r.Context(), req.Mobile, req.OTP, parsePurpose(req.Purpose))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.fail(w, r, auth.ErrInvalidOTP)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("verified")
		e.Bool(true)
		e.ObjEnd()
	})
}

type registerRequest struct {
	Mobile string `json:"mobile" validate:"required"`
	OTP    string `json:"otp" validate:"required,numeric,min=4,max=8"`
	Name   string `json:"name" validate:"required,min=2,max=100"`
	Email  string `json:"email" validate:"omitempty,email,max=255"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := registerRequest{
		Mobile: obj.str("mobile"),
		OTP:    obj.str("otp"),
		Name:   obj.str("name"),
		Email:  obj.str("email"),
	}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, sess, err := h.auth.Register(r.Context(), auth.RegisterRequest{
		Mobile: req.Mobile,
		OTP:    req.OTP,
		Name:   req.Name,
		Email:  req.Email,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSessionCookie(w, sess)
	envelope.Data(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeSession(e, u, sess)
	})
}

type loginRequest struct {
	Mobile string `json:"mobile" validate:"required"`
	OTP    string `json:"otp" validate:"required,numeric,min=4,max=8"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := loginRequest{Mobile: obj.str("mobile"), OTP: obj.str("otp")}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, sess, err := h.auth.Login(r.Context(), req.Mobile, req.OTP)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSessionCookie(w, sess)
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeSession(e, u, sess)
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), h.sessionToken(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	h.clearSessionCookie(w)
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeMessage(e, "Logged out successfully")
	})
}

// checkSession never fails for anonymous callers; it reports whether the
// presented session is valid.
func (h *Handler) checkSession(w http.ResponseWriter, r *http.Request) {
	var u *auth.User
	if token := h.sessionToken(r); token != "" {
		var err error
		u, err = h.auth.CheckSession(r.Context(), token)
		if err != nil && statusOf(err) == http.StatusInternalServerError {
			h.fail(w, r, err)
			return
		}
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("authenticated")
		e.Bool(u != nil)
		if u != nil {
			e.FieldStart("user")
			encodeUser(e, u)
		}
		e.ObjEnd()
	})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeUser(e, u)
	})
}

type profileRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=100"`
	Email        string `json:"email" validate:"omitempty,email,max=255"`
	AddressLine1 string `json:"address_line1" validate:"max=255"`
	AddressLine2 string `json:"address_line2" validate:"max=255"`
	City         string `json:"city" validate:"max=100"`
	State        string `json:"state" validate:"max=100"`
	Pincode      string `json:"pincode" validate:"omitempty,numeric,len=6"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	obj, err := readObject(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req := profileRequest{
		Name:         obj.str("name"),
		Email:        obj.str("email"),
		AddressLine1: obj.str("address_line1"),
		AddressLine2: obj.str("address_line2"),
		City:         obj.str("city"),
		State:        obj.str("state"),
		Pincode:      obj.str("pincode"),
	}
	if err := h.check(req); err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.auth.UpdateProfile(r.Context(), currentUser(r.Context()).ID, auth.ProfileUpdate{
		Name:         req.Name,
		Email:        req.Email,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		Pincode:      req.Pincode,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	envelope.Data(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeUser(e, u)
	})
}
