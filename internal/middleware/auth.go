package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/httpx"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Claims identify the caller. UserID wins over the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
}

func (c *Claims) identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// GenerateToken signs an HS256 token for userID.
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Auth rejects requests without a valid bearer token and stores the caller's
// user id in the request context.
func Auth(secret string) func(http.Handler) http.Handler {
	keyFunc := func(_ *jwt.Token) (interface{}, error) { return []byte(secret), nil }
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httpx.WriteError(w, appErrors.Unauthorized(errors.New("missing Authorization header")))
				return
			}
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				httpx.WriteError(w, appErrors.Unauthorized(errors.New("expected a bearer token")))
				return
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(tokenString, claims, keyFunc)
			if err != nil || !token.Valid {
				httpx.WriteError(w, appErrors.Unauthorized(errors.New("invalid token")))
				return
			}
			userID := claims.identity()
			if userID == "" {
				httpx.WriteError(w, appErrors.Unauthorized(errors.New("token has no user")))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the caller set by Auth, or "" outside it.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
