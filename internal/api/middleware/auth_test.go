package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillboard/quillboard-api/internal/api/shared"
	"github.com/quillboard/quillboard-api/internal/domain"
)

const testSecret = "test-secret-that-is-long-enough"

func signToken(t *testing.T, claims AccessClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(userID, orgID uuid.UUID) AccessClaims {
	return AccessClaims{
		OrgID: orgID.String(),
		Role:  "member",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	m, err := NewAuthMiddleware(testSecret)
	require.NoError(t, err)

	userID := uuid.New()
	orgID := uuid.New()

	t.Run("valid token yields principal", func(t *testing.T) {
		t.Parallel()
		tokenString := signToken(t, validClaims(userID, orgID), testSecret)

		principal, err := m.ValidateToken(tokenString)
		require.NoError(t, err)
		assert.Equal(t, userID, principal.UserID)
		assert.Equal(t, orgID, principal.OrgID)
		assert.Equal(t, domain.RoleMember, principal.Role)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()
		claims := validClaims(userID, orgID)
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		tokenString := signToken(t, claims, testSecret)

		_, err := m.ValidateToken(tokenString)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		tokenString := signToken(t, validClaims(userID, orgID), "some-other-secret")

		_, err := m.ValidateToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		t.Parallel()
		claims := validClaims(userID, orgID)
		claims.Role = "superuser"
		tokenString := signToken(t, claims, testSecret)

		_, err := m.ValidateToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("malformed subject", func(t *testing.T) {
		t.Parallel()
		claims := validClaims(userID, orgID)
		claims.Subject = "not-a-uuid"
		tokenString := signToken(t, claims, testSecret)

		_, err := m.ValidateToken(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	m, err := NewAuthMiddleware(testSecret)
	require.NoError(t, err)

	var captured domain.Principal
	var sawPrincipal bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, sawPrincipal = shared.PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := m.Authenticate(next)

	t.Run("sets principal in context", func(t *testing.T) {
		userID := uuid.New()
		orgID := uuid.New()
		tokenString := signToken(t, validClaims(userID, orgID), testSecret)

		req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.True(t, sawPrincipal)
		assert.Equal(t, userID, captured.UserID)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/cards", nil)
		req.Header.Set("Authorization", "Token abc")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestNewAuthMiddleware(t *testing.T) {
	t.Parallel()

	_, err := NewAuthMiddleware("")
	assert.Error(t, err)
}
