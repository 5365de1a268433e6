package ws

import (
	"net/http"
	"strings"

	"go_certhub/internal/auth"

	"github.com/sirupsen/logrus"
)

// extractToken reads the JWT from the token query parameter (socket.io
// clients send auth.token that way) or the Authorization header.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// Handler returns the Socket.IO handler with JWT checked on handshake
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/socket.io/") {
			token := extractToken(r)
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseToken(token)
			if err != nil {
				h.logger.WithField("remote", r.RemoteAddr).WithError(err).Info("handshake rejected")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			h.logger.WithFields(logrus.Fields{"user": claims.Username, "uid": claims.UID}).Debug("handshake accepted")
		}

		h.server.ServeHTTP(w, r)
	})
}
