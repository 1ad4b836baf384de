package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const GrantTypeAnonymous = "anonymous"

var ErrInvalidToken = errors.New("invalid token")

type CustomClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	GrantType string `json:"gty"`
}

func ExtractToken(r *http.Request) string {
	l := logger.For(logger.OAUTH)

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		l.Debug().Msg("No Authorization header found")
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		l.Warn().Msg("Malformed Authorization header")
		return ""
	}

	return parts[1]
}

// IssueAnonymousToken signs a token for a fresh session.
func IssueAnonymousToken(lifetime time.Duration) (string, *CustomClaims, error) {
	now := time.Now()
	sessionID := uuid.New().String()
	claims := &CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		SessionID: sessionID,
		GrantType: GrantTypeAnonymous,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(config.GetJWTSecret())
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// ValidateToken verifies the signature and expiry and requires a session.
func ValidateToken(tokenString string) (*CustomClaims, error) {
	l := logger.For(logger.OAUTH)

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return config.GetJWTSecret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		l.Debug().Err(err).Msg("Failed to parse token")
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" {
		l.Warn().Msg("Token missing session claim")
		return nil, fmt.Errorf("%w: missing session", ErrInvalidToken)
	}

	return claims, nil
}
