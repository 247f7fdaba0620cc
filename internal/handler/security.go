package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/pkg/envelope"
)

type userKey struct{}

// currentUser returns the authenticated user. Only valid behind requireUser.
func currentUser(ctx context.Context) *auth.User {
	u, _ := ctx.Value(userKey{}).(*auth.User)
	return u
}

// sessionToken reads the session token from the cookie or a bearer header.
func (h *Handler) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(h.cfg.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if v := r.Header.Get("Authorization"); len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

// requireUser resolves the session and rejects anonymous requests with 401.
func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.sessionToken(r)
		if token == "" {
			envelope.Error(w, r, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		u, err := h.auth.CheckSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidSession) || errors.Is(err, auth.ErrUserNotFound) {
				envelope.Error(w, r, http.StatusUnauthorized, "Invalid or expired session", nil)
				return
			}
			h.fail(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, u)
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.Int64("user_id", u.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin authenticates the X-API-Key header and requires the admin
// scope.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := h.keys.Verify(r.Context(), r.Header.Get("X-API-Key"))
		if err != nil || !info.HasScope(auth.ScopeAdmin) {
			envelope.Error(w, r, http.StatusUnauthorized, "Invalid API key", nil)
			return
		}
		ctx := zctx.Base(r.Context(), zctx.From(r.Context()).With(zap.String("api_key", info.Name)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, s *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
