package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupay/fee-engine/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", CronSecret: "cron-secret"}
}

func signToken(t *testing.T, secret, subject string, expiry time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiry),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func okHandler(adminID *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v, ok := r.Context().Value(AdminIDKey).(string); ok {
			*adminID = v
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()

	t.Run("valid token passes and exposes admin id", func(t *testing.T) {
		var adminID string
		handler := AuthMiddleware(cfg)(okHandler(&adminID))

		req := httptest.NewRequest(http.MethodGet, "/payment-schedules/1/status", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, cfg.JWTSecret, "admin-42", time.Now().Add(time.Hour)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "admin-42", adminID)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		var adminID string
		handler := AuthMiddleware(cfg)(okHandler(&adminID))

		req := httptest.NewRequest(http.MethodGet, "/payment-schedules/1/status", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		var adminID string
		handler := AuthMiddleware(cfg)(okHandler(&adminID))

		req := httptest.NewRequest(http.MethodGet, "/payment-schedules/1/status", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "admin-42", time.Now().Add(time.Hour)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		var adminID string
		handler := AuthMiddleware(cfg)(okHandler(&adminID))

		req := httptest.NewRequest(http.MethodGet, "/payment-schedules/1/status", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, cfg.JWTSecret, "admin-42", time.Now().Add(-time.Hour)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCronAuth(t *testing.T) {
	cfg := testConfig()

	t.Run("cron secret accepted", func(t *testing.T) {
		var adminID string
		handler := CronAuth(cfg)(okHandler(&adminID))

		req := httptest.NewRequest(http.MethodPost, "/recompute", nil)
		req.Header.Set("Authorization", "Bearer cron-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("admin token also accepted", func(t *testing.T) {
		var adminID string
		handler := CronAuth(cfg)(okHandler(&adminID))

		req := httptest.NewRequest(http.MethodPost, "/recompute", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, cfg.JWTSecret, "admin-42", time.Now().Add(time.Hour)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong secret falls through to jwt and fails", func(t *testing.T) {
		var adminID string
		handler := CronAuth(cfg)(okHandler(&adminID))

		req := httptest.NewRequest(http.MethodPost, "/recompute", nil)
		req.Header.Set("Authorization", "Bearer wrong-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("empty cron secret never matches", func(t *testing.T) {
		noSecret := &config.Config{JWTSecret: "test-secret"}
		var adminID string
		handler := CronAuth(noSecret)(okHandler(&adminID))

		req := httptest.NewRequest(http.MethodPost, "/recompute", nil)
		req.Header.Set("Authorization", "Bearer ")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
