package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, cfg CORSConfig, method, origin string, preflight bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/cart", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "X-Custom")
	}
	w := httptest.NewRecorder()
	CORS(cfg)(okHandler()).ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	shop := CORSConfig{
		AllowOrigins:     []string{"https://Shop.example"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           600,
	}

	t.Run("Preflight", func(t *testing.T) {
		w := corsRequest(t, shop, http.MethodOptions, "https://shop.example", true)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://Shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Content-Type, Authorization", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
		assert.Contains(t, w.Header().Values("Vary"), "Access-Control-Request-Method")
	})

	t.Run("PreflightRejected", func(t *testing.T) {
		w := corsRequest(t, shop, http.MethodOptions, "https://evil.example", true)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Actual", func(t *testing.T) {
		w := corsRequest(t, shop, http.MethodGet, "https://shop.example", false)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://Shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Values("Vary"), "Origin")
	})

	t.Run("NoOrigin", func(t *testing.T) {
		w := corsRequest(t, shop, http.MethodGet, "", false)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Wildcard", func(t *testing.T) {
		w := corsRequest(t, CORSConfig{AllowOrigins: []string{"*"}}, http.MethodOptions, "https://any.example", true)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "X-Custom", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("WildcardWithCredentials", func(t *testing.T) {
		w := corsRequest(t, CORSConfig{AllowCredentials: true}, http.MethodGet, "https://any.example", false)
		assert.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Values("Vary"), "Origin")
	})
}
