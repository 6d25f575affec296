package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/shopauth/session"
)

func (s *Server) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Session.SecureCookies,
		SameSite: s.cfg.Session.SameSite,
	}
}

// setSessionCookie writes the session id. Only remember-me sessions get an
// expiry; the rest end with the browser.
func (s *Server) setSessionCookie(w http.ResponseWriter, sess *session.Session) {
	c := s.cookie(s.cfg.Session.CookieName, sess.SessionID)
	if sess.Persistent {
		c.MaxAge = int(sess.Lifetime / time.Second)
		c.Expires = time.Now().Add(sess.Lifetime)
	}
	http.SetCookie(w, c)
}

// setShortCookie writes a challenge cookie living for ttl.
func (s *Server) setShortCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	c := s.cookie(name, value)
	c.MaxAge = int(ttl / time.Second)
	http.SetCookie(w, c)
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	c := s.cookie(name, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// localRedirect keeps open redirects out: only same-site absolute paths pass.
func localRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}

func seeOther(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}
