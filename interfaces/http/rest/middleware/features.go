package middleware

import (
	"net/http"

	"loom-backend/infrastructure/config"
	"loom-backend/pkg/api"
)

// RequireFeature rejects requests for a feature that is currently
// disabled. Flags are read per request so a hot-reloaded toggle takes
// effect without a restart.
func RequireFeature(features *config.DynamicConfigManager, feature string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if features != nil && !features.IsFeatureEnabled(feature) {
				api.Error(w, http.StatusForbidden, "feature disabled: "+feature)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
