package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"bank-ledger/internal/auth"
)

type contextKey string

const actorKey contextKey = "actorUserID"

// AuthMiddleware verifies the bearer token and injects the asserted user id
// into the request context. Everything behind it can trust ActorID.
func AuthMiddleware(authSvc *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeErr(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeErr(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			userID, err := authSvc.VerifyToken(parts[1])
			if err != nil {
				writeErr(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorID returns the authenticated user id placed by AuthMiddleware.
func ActorID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(actorKey).(uuid.UUID)
	return id, ok
}

// withConcurrencyLimit bounds in-flight requests at the edge. When the
// limit is hit the request fails fast instead of queueing behind a
// saturated database pool.
func withConcurrencyLimit(next http.Handler, max int) http.Handler {
	if max <= 0 {
		max = 64
	}
	sem := make(chan struct{}, max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			writeErr(w, http.StatusServiceUnavailable, "server busy")
		}
	})
}
