package middleware

import (
	"context"
	"net/http"
	"strings"
)

type adminCtxKey struct{}

// TokenValidator checks an opaque admin session token and returns the
// admin's email when valid.
type TokenValidator interface {
	ValidateSessionToken(ctx context.Context, token string) (string, error)
}

// AdminAuth returns middleware that validates the bearer token on admin
// routes. WebSocket clients cannot set headers, so a ?token= query
// parameter is accepted as a fallback.
func AdminAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			email, err := validator.ValidateSessionToken(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), adminCtxKey{}, email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return token
}

// AdminFromContext returns the authenticated admin email, if any.
func AdminFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(adminCtxKey{}).(string)
	return email, ok
}
