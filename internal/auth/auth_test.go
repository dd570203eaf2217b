package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/config"
)

const secret = "test-secret"

func mint(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func validClaims(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func TestHMACVerifier(t *testing.T) {
	v := &HMACVerifier{Secret: []byte(secret)}
	ctx := context.Background()

	sub, err := v.Verify(ctx, mint(t, jwt.SigningMethodHS256, []byte(secret), validClaims("user-1")))
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	_, err = v.Verify(ctx, mint(t, jwt.SigningMethodHS256, []byte("other"), validClaims("user-1")))
	assert.Error(t, err, "wrong key")

	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = v.Verify(ctx, mint(t, jwt.SigningMethodHS256, []byte(secret), expired))
	assert.Error(t, err, "expired")

	noExp := validClaims("user-1")
	noExp.ExpiresAt = nil
	_, err = v.Verify(ctx, mint(t, jwt.SigningMethodHS256, []byte(secret), noExp))
	assert.Error(t, err, "missing exp")

	_, err = v.Verify(ctx, mint(t, jwt.SigningMethodHS384, []byte(secret), validClaims("user-1")))
	assert.Error(t, err, "unexpected alg")

	_, err = v.Verify(ctx, mint(t, jwt.SigningMethodHS256, []byte(secret), validClaims("")))
	assert.Error(t, err, "no subject")
}

func TestMiddleware(t *testing.T) {
	var seen string
	h := Middleware(&HMACVerifier{Secret: []byte(secret)}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + mint(t, jwt.SigningMethodHS256, []byte(secret), validClaims("user-9")), http.StatusNoContent},
		{"lowercase scheme", "bearer " + mint(t, jwt.SigningMethodHS256, []byte(secret), validClaims("user-9")), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/users/me/bookings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, "user-9", seen)
			} else {
				assert.Empty(t, seen)
			}
		})
	}
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(context.Background(), config.AuthConfig{JWTSecret: secret})
	require.NoError(t, err)
	assert.IsType(t, &HMACVerifier{}, v)

	_, err = NewVerifier(context.Background(), config.AuthConfig{})
	assert.Error(t, err)
}

func TestUserIDMissing(t *testing.T) {
	assert.Empty(t, UserID(context.Background()))
	assert.Equal(t, "u", UserID(WithUserID(context.Background(), "u")))
}
