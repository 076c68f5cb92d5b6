package middleware

import (
	"context"
	"net/http"

	"github.com/eldtechnologies/batepapo/internal/validation"
)

type contextKey string

// UserContextKey holds the sanitized name sent in the User header.
const UserContextKey contextKey = "user"

// UserHeader names the participant a request acts as.
const UserHeader = "User"

// Identify stores the sanitized User header in the request context. It does
// not reject requests: each handler decides what a missing or unknown user
// means for its endpoint.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := validation.Sanitize(r.Header.Get(UserHeader))
		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserFromContext retrieves the requesting participant's name, or "" if
// none was sent.
func GetUserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(UserContextKey).(string)
	return user
}
