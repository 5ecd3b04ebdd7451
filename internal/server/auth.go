package server

import (
	"net/http"
	"strings"

	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/core/secret"
	"github.com/yohi/antigravity-mcp-bridge/internal/metrics"
)

// ExtractBearer returns the token of an Authorization: Bearer header.
func ExtractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return h[7:]
	}
	return ""
}

// BearerMiddleware rejects requests whose bearer token does not match token.
// An empty token rejects everything.
func BearerMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := ExtractBearer(r)
			if token != "" && tok != "" && secret.Equal(tok, token) {
				next.ServeHTTP(w, r)
				return
			}
			metrics.RecordAuthRejection()
			logx.Log.Warn().Str("remote", r.RemoteAddr).Msg("Unauthorized connection attempt")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		})
	}
}
