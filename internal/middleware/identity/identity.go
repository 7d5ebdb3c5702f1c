// Package identity reads the caller's user ID set by the fronting auth layer.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// Header carries the authenticated user's ID.
const Header = "X-User-ID"

const maxUserIDLength = 128

type contextKey struct{}

// WithUserID returns ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID returns the caller's ID, or "" when the request was not identified.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware rejects requests without a usable X-User-ID. onMissing writes
// the rejection; nil falls back to a plain-text 401.
func Middleware(onMissing func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(Header))
			if userID == "" || len(userID) > maxUserIDLength {
				if onMissing != nil {
					onMissing(w, r)
				} else {
					http.Error(w, "missing user identity", http.StatusUnauthorized)
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
