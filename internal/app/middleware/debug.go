package middleware

import (
	"context"
	"net/http"

	"github.com/balancedhttp/core/internal/config"
	"github.com/balancedhttp/core/internal/core/constants"
)

// DebugMiddleware detects the debug-mode marker (header, query parameter, or
// cookie) on an inbound request and, when present, requires the configured
// login/password before stamping the request context as debug-enabled
// (ss4.I, External Interfaces "Debug protocol"). A marker without valid
// credentials short-circuits with 401 and a WWW-Authenticate challenge
// rather than reaching the Handler Pipeline at all.
func DebugMiddleware(cfg config.DebugConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || !isDebugRequested(r) {
				next.ServeHTTP(w, r)
				return
			}

			login, password, ok := r.BasicAuth()
			if !ok || login != cfg.Login || password != cfg.Password {
				w.Header().Set(constants.HeaderWWWAuth, `Basic realm="debug"`)
				http.Error(w, "debug mode requires valid credentials", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), constants.ContextDebugModeKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isDebugRequested(r *http.Request) bool {
	if r.Header.Get(constants.HeaderXHHDebug) == "true" {
		return true
	}
	if r.URL.Query().Get(constants.DebugQueryParam) != "" {
		return true
	}
	if c, err := r.Cookie(constants.DebugCookieName); err == nil && c.Value != "" {
		return true
	}
	return false
}
