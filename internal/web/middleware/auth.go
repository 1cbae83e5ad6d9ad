package middleware

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/sheetpipe/internal/config"
)

// APIKeyAuth requires a valid X-API-Key header when cfg.RequireAPIKey is
// set. With the flag off every request passes.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.RequireAPIKey {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			switch {
			case key == "":
				slog.Warn("auth: missing API key", "path", r.URL.Path, "method", r.Method, "remote_addr", r.RemoteAddr)
				writeJSONError(w, http.StatusUnauthorized, "missing API key", "AUTH001")
				return
			case !isValidAPIKey(key, cfg.APIKeys):
				slog.Warn("auth: invalid API key", "path", r.URL.Path, "method", r.Method, "remote_addr", r.RemoteAddr)
				writeJSONError(w, http.StatusForbidden, "invalid API key", "AUTH002")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isValidAPIKey compares key against every configured key in constant time.
func isValidAPIKey(key string, validKeys []string) bool {
	valid := 0
	for _, k := range validKeys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return valid == 1
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q,"message":%q,"code":%q}`+"\n", message, message, code)
}
