package middleware

import (
	"context"
	"net/http"

	"github.com/docuforge/docuforge/internal/api"
	"github.com/docuforge/docuforge/internal/domain"
)

type contextKey string

const (
	TenantIDKey    contextKey = "tenant_id"
	EnvironmentKey contextKey = "environment"
	UserIDKey      contextKey = "user_id"
)

// TenantIdentity resolves the calling tenant from request headers and puts it
// on the context. The environment defaults to PRODUCTION when the header is
// absent; an unknown environment is rejected.
func TenantIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get("X-Tenant-ID")
		if tenantID == "" {
			api.Error(w, http.StatusBadRequest, "missing X-Tenant-ID header")
			return
		}

		env := domain.Environment(r.Header.Get("X-Environment"))
		if env == "" {
			env = domain.EnvironmentProduction
		}
		if !domain.IsValidEnvironment(env) {
			api.Error(w, http.StatusBadRequest, "invalid X-Environment header")
			return
		}

		ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
		ctx = context.WithValue(ctx, EnvironmentKey, env)
		if userID := r.Header.Get("X-User-ID"); userID != "" {
			ctx = context.WithValue(ctx, UserIDKey, userID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantID returns the tenant id from context.
func GetTenantID(ctx context.Context) string {
	tenantID, _ := ctx.Value(TenantIDKey).(string)
	return tenantID
}

// GetEnvironment returns the environment from context.
func GetEnvironment(ctx context.Context) domain.Environment {
	env, _ := ctx.Value(EnvironmentKey).(domain.Environment)
	return env
}

// GetUserID returns the user id from context.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}
