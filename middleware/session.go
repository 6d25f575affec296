package middleware

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/shopauth"
)

// RequireSession resolves the session cookie named cookieName. Stale or
// unknown sessions get their cookie cleared and a 401.
func RequireSession(engine *shopauth.Engine, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" {
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			p, err := engine.Authenticate(r.Context(), c.Value)
			if err != nil {
				if errors.Is(err, shopauth.ErrStoreUnavailable) {
					deny(w, http.StatusServiceUnavailable, "session store unavailable")
					return
				}
				http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
				deny(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
