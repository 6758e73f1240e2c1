// Package middleware holds HTTP middleware shared by the GMLC's admin API
// and location endpoints.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const operatorKey contextKey = "operator"

// tokenTTL is the lifetime of an operator token.
const tokenTTL = 24 * time.Hour

// OperatorClaims holds the JWT claims for admin API authentication.
type OperatorClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for an operator login.
func GenerateToken(secret []byte, username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tokenTTL)

	claims := OperatorClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "gmlc",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireAuth returns middleware that validates JWT bearer tokens for admin
// endpoints. On success it stores the operator name in the request context.
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeAuthError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims := &OperatorClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("admin auth: invalid jwt", "error", err)
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.Username == "" {
				writeAuthError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext retrieves the authenticated operator name from the
// request context. Returns "" if not set.
func OperatorFromContext(ctx context.Context) string {
	name, _ := ctx.Value(operatorKey).(string)
	return name
}

// authEnvelope matches the api package's envelope format for error responses.
type authEnvelope struct {
	Error string `json:"error,omitempty"`
}

// writeAuthError writes a JSON error matching the API envelope format.
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authEnvelope{Error: msg}) //nolint:errcheck
}
