package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"gwi.com/campus-knowledge/internal/auth"
)

type contextKey int

const identityKey contextKey = iota

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeErrorMessage(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		identity, err := auth.ValidateJWT(tokenString)
		if err != nil {
			slog.Debug("Rejected bearer token", "error", err)
			writeErrorMessage(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects callers whose token role is not in the handler's
// ingest roles.
func (h *APIHandler) RequireRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFrom(r.Context())
		if identity == nil || !auth.HasRole(identity.Role, h.cfg.IngestRoles) {
			writeErrorMessage(w, http.StatusForbidden, "Insufficient role for document ingestion")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFrom(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(identityKey).(*auth.Identity)
	return identity
}

func userID(r *http.Request) string {
	if identity := identityFrom(r.Context()); identity != nil {
		return identity.UserID
	}
	return ""
}
