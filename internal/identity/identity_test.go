package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, sub string, expires time.Time) string {
	t.Helper()
	claims := &Claims{Email: "ada@example.com"}
	claims.UserMetadata.FullName = "Ada Lovelace"
	claims.Subject = sub
	claims.ExpiresAt = jwt.NewNumericDate(expires)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifier_Verify(t *testing.T) {
	userID := uuid.New()
	v := NewHMACVerifier(testSecret)

	p, err := v.Verify(signToken(t, testSecret, userID.String(), time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, "ada@example.com", p.Email)
	assert.Equal(t, "Ada Lovelace", p.Name)
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewHMACVerifier(testSecret)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name  string
		token string
		err   error
	}{
		{"wrong secret", signToken(t, "other", uuid.NewString(), future), jwt.ErrTokenSignatureInvalid},
		{"expired", signToken(t, testSecret, uuid.NewString(), time.Now().Add(-time.Hour)), jwt.ErrTokenExpired},
		{"missing subject", signToken(t, testSecret, "", future), ErrMissingSubject},
		{"non uuid subject", signToken(t, testSecret, "service-role", future), ErrInvalidSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestJWTMiddleware(t *testing.T) {
	userID := uuid.New()
	v := NewHMACVerifier(testSecret)
	e := echo.New()

	handler := JWTMiddleware(v)(func(c echo.Context) error {
		p, ok := PrincipalFromContext(c.Request().Context())
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, p.UserID.String())
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, testSecret, userID.String(), time.Now().Add(time.Hour)), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler(c)
			if tt.status == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, userID.String(), rec.Body.String())
				return
			}
			var httpErr *echo.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, tt.status, httpErr.Code)
		})
	}
}
