package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/authx"
)

// RequestMeta attaches the client IP and User-Agent to the request context. Place it
// after chi's RealIP when the service runs behind a proxy.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		ctx := authx.WithClientInfo(r.Context(), authx.ClientInfo{
			IP:        host,
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
