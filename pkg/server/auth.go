package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/phantomwatt/phantomwatt/pkg/log"
)

// requireAuth guards mutating endpoints. When no OIDC audience is configured
// the deployment is trusted (local or behind its own proxy auth) and requests
// pass through.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.bypassAuth {
			next(w, r)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			writeJSONError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		token, err := s.oidcVerifier(ctx, raw)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "rejected id token",
				slog.String("path", r.URL.Path), slog.Any("error", err))
			writeJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		log.Ctx(ctx).DebugContext(ctx, "authorized request",
			slog.String("path", r.URL.Path), slog.String("subject", token.Subject))

		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
