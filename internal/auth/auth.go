package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofrs/uuid"
)

type contextKey string

const (
	tokenKey  contextKey = "auth.token"
	userIDKey contextKey = "auth.userID"
)

// Middleware extracts the caller's bearer token and identity and stores them
// on the request context. It never rejects requests by itself; handlers that
// need an identity check UserID and reject when it is absent.
//
// The token is read from the access_token cookie, falling back to the
// Authorization header. The identity is taken from the X-User-ID header set
// by the API gateway after it verified the token.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if token := extractToken(r); token != "" {
			ctx = context.WithValue(ctx, tokenKey, token)
		}
		if raw := r.Header.Get("X-User-ID"); raw != "" {
			if id, err := uuid.FromString(raw); err == nil {
				ctx = context.WithValue(ctx, userIDKey, id)
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	if c, err := r.Cookie("access_token"); err == nil && c.Value != "" {
		return c.Value
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// Token returns the caller's bearer token, or "" when the request carried none.
func Token(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}

// UserID returns the caller's identity and whether one was present.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}
