package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/heshamtamer/RPM/internal/errors"
	"github.com/heshamtamer/RPM/internal/metrics"
)

type contextKey string

const userContextKey contextKey = "user"

// UserContext carries the verified claims of the authenticated user. It is
// attached to the request context by the middleware; downstream handlers
// use it to scope queries to the owning user.
type UserContext struct {
	UserID   int64
	Username string
	Email    string
}

// Middleware is the authentication gate for protected routes. It extracts
// the bearer token, verifies it against the access key, and attaches the
// decoded claims to the request context.
func Middleware(authService *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := apperrors.GetRequestID(r.Context())

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apperrors.WriteError(w, requestID, apperrors.Unauthorized("missing authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				apperrors.WriteError(w, requestID, apperrors.Unauthorized("invalid authorization header format"))
				return
			}

			claims, err := authService.ValidateAccessToken(parts[1])
			if err != nil {
				metrics.Default().IncCounter("auth_failures_total")
				if errors.Is(err, ErrTokenExpired) {
					apperrors.WriteError(w, requestID, apperrors.TokenExpired())
					return
				}
				apperrors.WriteError(w, requestID, apperrors.Unauthorized("invalid access token"))
				return
			}

			userCtx := &UserContext{
				UserID:   claims.UserID,
				Username: claims.Username,
				Email:    claims.Email,
			}

			ctx := context.WithValue(r.Context(), userContextKey, userCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUser returns a context carrying the given user, as Middleware would
// produce for an authenticated request.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext returns the authenticated user attached by Middleware,
// or nil on an unauthenticated request.
func GetUserFromContext(ctx context.Context) *UserContext {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok {
		return nil
	}
	return user
}
