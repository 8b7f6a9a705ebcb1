package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/reelgen/internal/api/shared"
	"github.com/phrazzld/reelgen/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubJWTService validates exactly one known token.
type stubJWTService struct {
	validToken string
	operator   string
	err        error
}

func (s *stubJWTService) GenerateToken(_ context.Context, operator string) (string, error) {
	return s.validToken, nil
}

func (s *stubJWTService) ValidateToken(_ context.Context, token string) (*auth.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	if token != s.validToken {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{Operator: s.operator}, nil
}

func authTestHandler(t *testing.T, wantOperator string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator, ok := shared.GetOperator(r.Context())
		require.True(t, ok)
		assert.Equal(t, wantOperator, operator)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateAcceptsValidBearer(t *testing.T) {
	t.Parallel()

	m := NewAuthMiddleware(&stubJWTService{validToken: "good-token", operator: "alex"})
	handler := m.Authenticate(authTestHandler(t, "alex"))

	r := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	r.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	t.Parallel()

	m := NewAuthMiddleware(&stubJWTService{validToken: "good-token"})
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateRejectsMalformedHeader(t *testing.T) {
	t.Parallel()

	m := NewAuthMiddleware(&stubJWTService{validToken: "good-token"})
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	m := NewAuthMiddleware(&stubJWTService{err: auth.ErrExpiredToken})
	handler := m.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	r.Header.Set("Authorization", "Bearer stale-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token expired")
}
