package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xconfess-notify/pkg/jwtutil"
)

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractToken(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", ExtractToken(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "token", Value: "cookie-token"})
	assert.Equal(t, "cookie-token", ExtractToken(r))

	// Websocket clients pass the token as a query parameter.
	r = httptest.NewRequest(http.MethodGet, "/?token=query-token", nil)
	assert.Equal(t, "query-token", ExtractToken(r))
}

func TestRequireSetsUserID(t *testing.T) {
	token, err := jwtutil.Sign("secret", "xconfess", "u1", "user", time.Minute)
	require.NoError(t, err)

	am := NewAuthMiddleware(jwtutil.NewVerifier("secret", "xconfess"))
	var gotUserID string
	handler := am.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", gotUserID)
}

func TestRequireRejectsMissingAndBadTokens(t *testing.T) {
	am := NewAuthMiddleware(jwtutil.NewVerifier("secret", "xconfess"))
	handler := am.Require(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	am := NewAuthMiddleware(jwtutil.NewVerifier("secret", "xconfess"))
	handler := am.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	userToken, err := jwtutil.Sign("secret", "xconfess", "u1", "user", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminToken, err := jwtutil.Sign("secret", "xconfess", "a1", "admin", time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
