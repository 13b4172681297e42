package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoOperator(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetOperator(r.Context())))
	})
}

func TestMiddlewareDisabled(t *testing.T) {
	handler := Middleware(Config{})(newEchoOperator(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/tasks", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret", AccessTokenTTL: time.Minute}
	handler := Middleware(cfg)(newEchoOperator(t))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/tasks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Basic abc")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret", AccessTokenTTL: time.Minute}
	handler := Middleware(cfg)(newEchoOperator(t))

	token, err := GenerateToken(cfg, "ops@brebot", "admin")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops@brebot", rec.Body.String())
}

func TestGenerateTokenTTLFallback(t *testing.T) {
	// 非法 TTL 回退到默认值，签出的令牌仍然有效
	cfg := Config{JWTSecret: "test-secret", AccessTokenTTL: -time.Minute}
	token, err := GenerateToken(cfg, "ops@brebot", "admin")
	require.NoError(t, err)

	claims, err := ParseToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "ops@brebot", claims.Subject)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(Config{JWTSecret: "other-secret", AccessTokenTTL: time.Minute}, "ops", "admin")
	require.NoError(t, err)

	handler := Middleware(Config{JWTSecret: "test-secret", AccessTokenTTL: time.Minute})(newEchoOperator(t))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewarePublicRoutes(t *testing.T) {
	handler := Middleware(Config{JWTSecret: "test-secret"})(newEchoOperator(t))

	for _, path := range []string{"/healthz", "/metrics", "/ws/events"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "path %s should be public", path)
	}
}
