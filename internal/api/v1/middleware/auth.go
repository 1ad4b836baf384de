package middleware

import (
	"context"
	"net/http"

	"github.com/deepgram/wayfinder/internal/services/oauth"
	"github.com/deepgram/wayfinder/pkg/httpext"
	"github.com/deepgram/wayfinder/pkg/logger"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
)

// RequireAuth rejects requests without a valid bearer token and stores the
// token claims in the request context.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := oauth.ExtractToken(r)
			if tokenString == "" {
				httpext.JsonError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := oauth.ValidateToken(tokenString)
			if err != nil {
				l := logger.For(logger.MIDDLEWARE)
				l.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected bearer token")
				httpext.JsonError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims retrieves the token claims from the request context
func GetClaims(r *http.Request) *oauth.CustomClaims {
	if claims, ok := r.Context().Value(claimsKey).(*oauth.CustomClaims); ok {
		return claims
	}
	return nil
}
