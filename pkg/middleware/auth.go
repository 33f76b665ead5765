package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gymbook/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

const MemberIDKey contextKey = "member_id"

// MemberAuth verifies the bearer token of the authenticated session and puts
// the member id (the `sub` claim) on the request context. Token issuance
// lives in the auth service; this side only verifies.
func MemberAuth(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				rejectUnauthorized(w, log, r, "missing bearer token")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				rejectUnauthorized(w, log, r, "invalid token")
				return
			}

			memberID, err := token.Claims.GetSubject()
			if err != nil || memberID == "" {
				rejectUnauthorized(w, log, r, "token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), MemberIDKey, memberID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MemberFromContext returns the authenticated member id, or "" when the
// request did not pass through MemberAuth.
func MemberFromContext(ctx context.Context) string {
	if v := ctx.Value(MemberIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func rejectUnauthorized(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	log.Warn("Unauthorized request",
		"request_id", requestIDFromContext(r.Context()),
		"reason", reason,
		"path", r.URL.Path,
		"method", r.Method,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
}
