package middleware

import (
	"net/http"

	"github.com/MrEthical07/shopauth"
)

// RequirePolicy must run after RequireBearer or RequireSession.
func RequirePolicy(engine *shopauth.Engine, pol shopauth.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !engine.Authorize(p, pol) {
				deny(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
