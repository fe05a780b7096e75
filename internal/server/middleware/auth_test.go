package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTokenValidator struct {
	validTokens map[string]string
}

func (v *testTokenValidator) ValidateToken(tokenString string) (SubjectGetter, error) {
	subject, ok := v.validTokens[tokenString]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return testClaims(subject), nil
}

type testClaims string

func (c testClaims) GetSubject() (string, error) {
	if c == "" {
		return "", fmt.Errorf("no subject")
	}
	return string(c), nil
}

func newProtected(t *testing.T) (http.Handler, *string) {
	t.Helper()
	validator := &testTokenValidator{validTokens: map[string]string{
		"valid-token": "cron",
		"no-subject":  "",
	}}
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := GetSubject(r)
		require.NoError(t, err)
		seen = subject
		w.WriteHeader(http.StatusOK)
	})
	return AuthMiddleware(validator)(next), &seen
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	for _, header := range []string{"Bearer valid-token", "bearer valid-token", "BEARER   valid-token"} {
		t.Run(header, func(t *testing.T) {
			handler, seen := newProtected(t)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", header)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "cron", *seen)
		})
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"no token", "Bearer"},
		{"extra parts", "Bearer valid-token extra"},
		{"unknown token", "Bearer forged"},
		{"token without subject", "Bearer no-subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, seen := newProtected(t)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			assert.Empty(t, *seen, "handler must not run")
		})
	}
}

func TestAuthMiddleware_NilValidator(t *testing.T) {
	called := false
	handler := AuthMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestGetSubject_Missing(t *testing.T) {
	_, err := GetSubject(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), subjectKey, 42))
	_, err = GetSubject(req)
	assert.Error(t, err, "wrong type in context")
}
