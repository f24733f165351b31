package middleware

import (
	"context"
	"net/http"
)

const headerOwnerID = "X-Owner-ID"

type ownerCtxKey struct{}

// OwnerID is middleware that extracts the owner ID from the X-Owner-ID
// header and stores it in the request context. Requests without an owner
// are rejected; owner scoping is a caller-contract requirement, not a
// default we can guess.
func OwnerID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		oid := r.Header.Get(headerOwnerID)
		if oid == "" {
			http.Error(w, `{"error":"X-Owner-ID header is required"}`, http.StatusBadRequest)
			return
		}
		ctx := context.WithValue(r.Context(), ownerCtxKey{}, oid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerIDFromContext returns the owner ID stored in ctx, or "" if absent.
func OwnerIDFromContext(ctx context.Context) string {
	oid, _ := ctx.Value(ownerCtxKey{}).(string)
	return oid
}
