package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/middleware"
)

func (s *Server) accountRoutes(r chi.Router) {
	r.Post("/Register", s.register)
	r.Post("/Login", s.login)
	r.Post("/LoginWith2fa", s.loginWith2fa)
	r.Post("/ForgotPassword", s.forgotPassword)
	r.Post("/ResetPassword", s.resetPassword)
	r.Get("/ConfirmEmail", s.confirmEmail)
	r.Post("/ResendEmailConfirmation", s.resendConfirmation)
	r.Post("/ExternalLogin", s.externalLogin)
	r.Get("/ExternalLoginCallback", s.externalLoginCallback)
	r.Get("/ExternalLoginConfirmation", s.externalLoginPending)
	r.Post("/ExternalLoginConfirmation", s.externalLoginConfirmation)
	r.Post("/Logout", s.logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.engine, s.cfg.Session.CookieName))
		r.Get("/ManageAccount", s.manageAccount)
		r.Post("/ChangePassword", s.changePassword)
		r.Get("/EnableTwoFactorAuthentication", s.twoFactorSetup)
		r.Post("/EnableTwoFactorAuthentication", s.enableTwoFactor)
		r.Post("/DisableTwoFactorAuthentication", s.disableTwoFactor)
	})
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.PostFormValue(key))
}

func formBool(r *http.Request, key string) bool {
	switch strings.ToLower(formValue(r, key)) {
	case "true", "on", "1":
		return true
	}
	return false
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	dob, err := parseDate("DateOfBirth", formValue(r, "DateOfBirth"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.Register(r.Context(), shopauth.RegisterRequest{
		Profile: shopauth.Profile{
			FirstName:   formValue(r, "FirstName"),
			LastName:    formValue(r, "LastName"),
			Email:       formValue(r, "Email"),
			DateOfBirth: dob,
		},
		Password:        r.PostFormValue("Password"),
		ConfirmPassword: r.PostFormValue("ConfirmPassword"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	seeOther(w, r, "/Account/RegisterConfirmation?email="+url.QueryEscape(res.Email))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	returnURL := localRedirect(formValue(r, "ReturnUrl"), "/")
	rememberMe := formBool(r, "RememberMe")

	res, err := s.engine.PasswordSignIn(r.Context(), formValue(r, "Email"), r.PostFormValue("Password"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch res.Status {
	case shopauth.SignInSucceeded:
		s.startSession(w, r, res.User, rememberMe, returnURL)
	case shopauth.SignInRequiresTwoFactor:
		cid, err := s.engine.BeginTwoFactorChallenge(r.Context(), res.User.ID, rememberMe)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.setShortCookie(w, s.cfg.Session.TwoFactorCookieName, cid, s.cfg.TOTP.ChallengeTTL)
		seeOther(w, r, "/Account/LoginWith2fa?ReturnUrl="+url.QueryEscape(returnURL))
	case shopauth.SignInLockedOut:
		writeMessage(w, http.StatusForbidden, "User account locked out.")
	case shopauth.SignInNotAllowed:
		writeMessage(w, http.StatusForbidden, "You must confirm your email before you can log in.")
	default:
		writeMessage(w, http.StatusUnauthorized, "Invalid login attempt.")
	}
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *shopauth.User, rememberMe bool, returnURL string) {
	sess, err := s.engine.SignIn(r.Context(), user, rememberMe)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, sess)
	seeOther(w, r, returnURL)
}

func (s *Server) loginWith2fa(w http.ResponseWriter, r *http.Request) {
	cookieName := s.cfg.Session.TwoFactorCookieName
	cid := cookieValue(r, cookieName)
	if cid == "" {
		writeMessage(w, http.StatusUnauthorized, "Unable to load two-factor authentication user.")
		return
	}
	returnURL := localRedirect(formValue(r, "ReturnUrl"), "/")

	res, rememberMe, err := s.engine.CompleteTwoFactorChallenge(r.Context(), cid, formValue(r, "TwoFactorCode"))
	if err != nil {
		if errors.Is(err, shopauth.ErrSessionInvalid) {
			s.clearCookie(w, cookieName)
			writeMessage(w, http.StatusUnauthorized, "Unable to load two-factor authentication user.")
			return
		}
		s.writeError(w, r, err)
		return
	}

	switch res.Status {
	case shopauth.SignInSucceeded:
		s.clearCookie(w, cookieName)
		s.startSession(w, r, res.User, rememberMe, returnURL)
	case shopauth.SignInLockedOut:
		s.clearCookie(w, cookieName)
		writeMessage(w, http.StatusForbidden, "User account locked out.")
	default:
		writeMessage(w, http.StatusUnauthorized, "Invalid authenticator code.")
	}
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ForgotPassword(r.Context(), formValue(r, "Email")); err != nil {
		s.writeError(w, r, err)
		return
	}
	seeOther(w, r, "/Account/ForgotPasswordConfirmation")
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	pw := r.PostFormValue("Password")
	if confirm := r.PostFormValue("ConfirmPassword"); confirm != "" && confirm != pw {
		s.writeError(w, r, confirmMismatch())
		return
	}
	if err := s.engine.ResetPassword(r.Context(), formValue(r, "Email"), formValue(r, "Code"), pw); err != nil {
		s.writeError(w, r, err)
		return
	}
	seeOther(w, r, "/Account/ResetPasswordConfirmation")
}

func (s *Server) confirmEmail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, code := q.Get("userId"), q.Get("code")
	if userID == "" || code == "" {
		seeOther(w, r, "/")
		return
	}
	if err := s.engine.ConfirmEmail(r.Context(), userID, code); err != nil {
		s.writeError(w, r, err)
		return
	}
	seeOther(w, r, "/Account/Login?confirmed=true")
}

func (s *Server) resendConfirmation(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ResendConfirmation(r.Context(), formValue(r, "Email")); err != nil {
		s.writeError(w, r, err)
		return
	}
	seeOther(w, r, "/Account/RegisterConfirmation")
}

func (s *Server) externalLogin(w http.ResponseWriter, r *http.Request) {
	p, err := s.providers.Get(formValue(r, "Provider"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Unknown external login provider.")
		return
	}
	state, err := s.engine.BeginOAuth(r.Context(), p.Name(), localRedirect(formValue(r, "ReturnUrl"), "/"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	seeOther(w, r, p.AuthCodeURL(state))
}

func (s *Server) externalLoginCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if remote := q.Get("error"); remote != "" {
		writeMessage(w, http.StatusUnauthorized, "Error from external provider: "+remote)
		return
	}
	p, err := s.providers.Get(q.Get("provider"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Unknown external login provider.")
		return
	}
	returnURL, err := s.engine.VerifyOAuthState(r.Context(), p.Name(), q.Get("state"))
	if err != nil {
		if errors.Is(err, shopauth.ErrStoreUnavailable) {
			s.writeError(w, r, err)
			return
		}
		writeMessage(w, http.StatusUnauthorized, "Error loading external login information.")
		return
	}

	id, err := p.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		s.logger.Warn("external exchange failed", zap.String("provider", p.Name()), zap.Error(err))
		writeMessage(w, http.StatusUnauthorized, "Error loading external login information.")
		return
	}

	res, err := s.engine.ExternalSignIn(r.Context(), *id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.NeedsRegistration {
		cid, err := s.engine.BeginExternalRegistration(r.Context(), res.Identity)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.setShortCookie(w, s.cfg.Session.ExternalCookieName, cid, shopauth.PendingExternalTTL)
		seeOther(w, r, "/Account/ExternalLoginConfirmation")
		return
	}

	switch res.Status {
	case shopauth.SignInSucceeded:
		s.startSession(w, r, res.User, false, localRedirect(returnURL, "/"))
	case shopauth.SignInLockedOut:
		writeMessage(w, http.StatusForbidden, "User account locked out.")
	case shopauth.SignInNotAllowed:
		writeMessage(w, http.StatusForbidden, "You must confirm your email before you can log in.")
	default:
		writeMessage(w, http.StatusUnauthorized, "Invalid login attempt.")
	}
}

type externalPendingResponse struct {
	Provider  string `json:"provider"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// externalLoginPending prefills the confirmation form.
func (s *Server) externalLoginPending(w http.ResponseWriter, r *http.Request) {
	id, err := s.engine.PendingExternalLogin(r.Context(), cookieValue(r, s.cfg.Session.ExternalCookieName))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, externalPendingResponse{
		Provider:  id.Provider,
		Email:     id.Email,
		FirstName: id.GivenName,
		LastName:  id.FamilyName,
	})
}

func (s *Server) externalLoginConfirmation(w http.ResponseWriter, r *http.Request) {
	cookieName := s.cfg.Session.ExternalCookieName
	dob, err := parseDate("DateOfBirth", formValue(r, "DateOfBirth"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.engine.CompleteExternalRegistrationChallenge(r.Context(), cookieValue(r, cookieName), shopauth.Profile{
		FirstName:   formValue(r, "FirstName"),
		LastName:    formValue(r, "LastName"),
		Email:       formValue(r, "Email"),
		DateOfBirth: dob,
	})
	if err != nil {
		if errors.Is(err, shopauth.ErrSessionInvalid) {
			s.clearCookie(w, cookieName)
		}
		s.writeError(w, r, err)
		return
	}
	s.clearCookie(w, cookieName)
	s.startSession(w, r, user, false, "/")
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if sid := cookieValue(r, s.cfg.Session.CookieName); sid != "" {
		if err := s.engine.SignOut(r.Context(), sid); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	s.clearCookie(w, s.cfg.Session.CookieName)
	seeOther(w, r, "/")
}

func (s *Server) manageAccount(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	profile, err := s.engine.Profile(r.Context(), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// renewSession swaps the current session for one carrying the new stamp, so
// this browser stays signed in while the others drop out.
func (s *Server) renewSession(w http.ResponseWriter, r *http.Request, p *shopauth.Principal) bool {
	sess, err := s.engine.RefreshSignIn(r.Context(), p.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return false
	}
	s.setSessionCookie(w, sess)
	return true
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	newPassword := r.PostFormValue("NewPassword")
	if confirm := r.PostFormValue("ConfirmPassword"); confirm != "" && confirm != newPassword {
		s.writeError(w, r, confirmMismatch())
		return
	}
	if err := s.engine.ChangePassword(r.Context(), p.UserID, r.PostFormValue("OldPassword"), newPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.renewSession(w, r, p) {
		seeOther(w, r, "/Account/ManageAccount")
	}
}

type twoFactorSetupResponse struct {
	SharedKey        string `json:"sharedKey"`
	AuthenticatorURI string `json:"authenticatorUri"`
}

func (s *Server) twoFactorSetup(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	setup, err := s.engine.BeginTwoFactorSetup(r.Context(), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, twoFactorSetupResponse{
		SharedKey:        setup.SharedKey,
		AuthenticatorURI: setup.AuthenticatorURI,
	})
}

func (s *Server) enableTwoFactor(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := s.engine.EnableTwoFactor(r.Context(), p.UserID, formValue(r, "Code")); err != nil {
		if errors.Is(err, shopauth.ErrTokenInvalid) {
			s.writeError(w, r, &shopauth.ValidationError{Errors: []shopauth.FieldError{{
				Field:   "Code",
				Message: "Verification code is invalid.",
			}}})
			return
		}
		s.writeError(w, r, err)
		return
	}
	if s.renewSession(w, r, p) {
		seeOther(w, r, "/Account/ManageAccount")
	}
}

func (s *Server) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := s.engine.DisableTwoFactor(r.Context(), p.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.renewSession(w, r, p) {
		seeOther(w, r, "/Account/ManageAccount")
	}
}
