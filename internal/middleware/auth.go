package middleware

import (
	"context"
	"net/http"
	"strings"

	"xconfess-notify/pkg/jwtutil"
	"xconfess-notify/pkg/response"
)

type contextKey string

const (
	ContextUserID contextKey = "user_id"
	ContextRole   contextKey = "role"
)

type AuthMiddleware struct {
	verifier *jwtutil.Verifier
}

func NewAuthMiddleware(v *jwtutil.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: v}
}

// ExtractToken checks, in order, the Authorization header, the token
// cookie, and the token query parameter. Websocket clients cannot set
// headers, so the query fallback stays.
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return q
	}
	return ""
}

// Require rejects unauthenticated requests and stores the verified
// user ID and role on the request context.
func (am *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized, "No token provided")
			return
		}
		claims, err := am.verifier.ParseAndValidate(token)
		if err != nil {
			response.Error(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), ContextUserID, claims.UserID)
		ctx = context.WithValue(ctx, ContextRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates the dead-letter admin surface.
func (am *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return am.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := r.Context().Value(ContextRole).(string)
		if role != "admin" {
			response.Error(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// UserID reads the authenticated user from the request context.
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(ContextUserID).(string)
	return id
}
