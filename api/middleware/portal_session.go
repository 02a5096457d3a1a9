package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/lumenfolio/portal-backend/pkg/logger"
)

const (
	portalSessionHeader = "X-Portal-Session"
	portalSessionCookie = "portal_session"
)

// PortalSession extracts the visitor's session token and client key. The
// portal is anonymous, so nothing here rejects: missing values flow through
// empty and the services decide what they gate.
func PortalSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(portalSessionHeader))
			if token == "" {
				if cookie, err := r.Cookie(portalSessionCookie); err == nil {
					token = strings.TrimSpace(cookie.Value)
				}
			}

			clientKey := clientKeyFromRequest(r)

			ctx := WithPortalSession(r.Context(), token)
			ctx = WithClientKey(ctx, clientKey)
			if logg != nil && clientKey != "" {
				ctx = logg.WithClientKey(ctx, clientKey)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientKeyFromRequest identifies the visitor for rate limiting and the
// download ledger: the first forwarded hop when behind a proxy, the socket
// peer otherwise.
func clientKeyFromRequest(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
