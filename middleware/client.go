package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/shopauth"
)

// ClientInfo copies the remote address and User-Agent into the request
// context. Run chi's RealIP first when behind a proxy.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := shopauth.WithClientIP(r.Context(), ip)
		ctx = shopauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
