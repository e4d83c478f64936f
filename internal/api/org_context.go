package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type orgContextKey struct{}

// RequireOrg resolves the organization for the request and rejects
// requests without one. The upstream gateway authenticates the caller
// and stamps X-Organization-ID.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Organization-ID")
		if raw == "" {
			raw = r.URL.Query().Get("org_id")
		}
		orgID, err := uuid.Parse(raw)
		if err != nil || orgID == uuid.Nil {
			respondError(w, http.StatusUnauthorized, "organization context required")
			return
		}
		ctx := context.WithValue(r.Context(), orgContextKey{}, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OrgID returns the organization resolved by RequireOrg.
func OrgID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(orgContextKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
