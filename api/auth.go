package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

// ownerKey carries the authenticated caller's user ID in the request context.
const ownerKey contextKey = "owner"

// authMiddleware validates an optional bearer JWT and stores the subject UUID
// in the request context.
//
// A request without an Authorization header proceeds as anonymous. A request
// with a header must carry a valid HS256 token whose subject parses as a UUID;
// anything else is rejected with 401. Authorization beyond identity is the
// handlers' job: they pass the owner ID down and the store enforces ownership.
func authMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid authorization header", "expected Bearer token")
				return
			}

			owner, err := parseSubject(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token", "")
				return
			}

			ctx := context.WithValue(r.Context(), ownerKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseSubject verifies the token signature and returns its subject as a UUID.
func parseSubject(tokenString string, secret []byte) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing token: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("reading subject claim: %w", err)
	}

	owner, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("subject is not a user ID: %w", err)
	}
	return owner, nil
}

// ownerFrom returns the authenticated caller's user ID, or uuid.Nil for
// anonymous requests.
func ownerFrom(r *http.Request) uuid.UUID {
	if owner, ok := r.Context().Value(ownerKey).(uuid.UUID); ok {
		return owner
	}
	return uuid.Nil
}
