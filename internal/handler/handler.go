// Package handler implements the storefront JSON API over chi.
package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/envelope"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
	// CookieName is the session cookie name.
	CookieName string
	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
}

// Services are the domain services the API delegates to.
type Services struct {
	Products *product.Service
	Cart     *cart.Service
	Orders   *order.Service
	Auth     *auth.Service
	Contact  *contact.Service
	Keys     *auth.KeyVerifier
}

// Handler serves the /api routes.
type Handler struct {
	cfg      Config
	products *product.Service
	cart     *cart.Service
	orders   *order.Service
	auth     *auth.Service
	contact  *contact.Service
	keys     *auth.KeyVerifier
	validate *validator.Validate
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg Config, s Services) *Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = "storefront_session"
	}
	return &Handler{
		cfg:      cfg,
		products: s.Products,
		cart:     s.Cart,
		orders:   s.Orders,
		auth:     s.Auth,
		contact:  s.Contact,
		keys:     s.Keys,
		validate: newValidator(),
	}
}

// Router returns a chi router with every API route mounted under /api.
// Callers may register more routes (probes) on the returned router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		envelope.Error(w, r, http.StatusNotFound, "Endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		envelope.Error(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/send-otp", h.sendOTP)
			r.Post("/verify-otp", h.verifyOTP)
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
			r.Get("/check-session", h.checkSession)
			r.Group(func(r chi.Router) {
				r.Use(h.requireUser)
				r.Get("/profile", h.profile)
				r.Post("/update-profile", h.updateProfile)
				r.Put("/update-profile", h.updateProfile)
			})
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(h.requireUser)
			r.Post("/add", h.cartAdd)
			r.Post("/update", h.cartUpdate)
			r.Put("/update", h.cartUpdate)
			r.Post("/remove", h.cartRemove)
			r.Delete("/remove", h.cartRemove)
			r.Get("/list", h.cartList)
			r.Get("/summary", h.cartSummary)
			r.Post("/clear", h.cartClear)
			r.Delete("/clear", h.cartClear)
			r.Get("/count", h.cartCount)
			r.Get("/validate", h.cartValidate)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(h.requireUser)
			r.Post("/create", h.orderCreate)
			r.Get("/list", h.orderList)
			r.Get("/detail", h.orderDetail)
			r.Get("/track", h.orderTrack)
			r.Post("/cancel", h.orderCancel)
			r.Post("/reorder", h.orderReorder)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/list", h.productList)
			r.Get("/featured", h.productFeatured)
			r.Get("/detail", h.productDetail)
			r.Get("/search", h.productSearch)
			r.Get("/categories", h.productCategories)
			r.Get("/by-category", h.productsByCategory)
			r.Get("/related", h.productRelated)
		})

		r.Route("/contact", func(r chi.Router) {
			r.Post("/submit", h.contactSubmit)
			r.Post("/newsletter", h.newsletter)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Get("/orders", h.adminOrders)
			r.Post("/orders/status", h.adminOrderStatus)
			r.Post("/orders/payment-status", h.adminPaymentStatus)
		})
	})
	return r
}

func imageURL(base, path string) string {
	if base == "" || path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
