package httpx

import (
	"context"
	"net/http"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxUserRole
)

// Identity pulls the caller from the gateway-provided headers. Requests
// without X-User-ID are rejected; authentication itself happens upstream.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing X-User-ID header"})
			return
		}
		role := r.Header.Get("X-User-Role")
		if role == "" {
			role = "customer"
		}
		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		ctx = context.WithValue(ctx, ctxUserRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits callers holding any of the listed roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := UserRole(r)
			for _, role := range roles {
				if got == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient role"})
		})
	}
}

func UserID(r *http.Request) string {
	v, _ := r.Context().Value(ctxUserID).(string)
	return v
}

func UserRole(r *http.Request) string {
	v, _ := r.Context().Value(ctxUserRole).(string)
	return v
}

func IsAdmin(r *http.Request) bool { return UserRole(r) == "admin" }
