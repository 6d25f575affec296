package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	DateOfBirth     string `json:"dateOfBirth"`
}

type refreshRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) apiRoutes(r chi.Router) {
	r.Post("/login", s.apiLogin)
	r.Post("/register", s.apiRegister)
	r.Post("/refresh-token", s.apiRefresh)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireBearer(s.engine))
		r.Get("/user-info", s.apiUserInfo)
		r.Post("/change-password", s.apiChangePassword)
		r.Post("/logout", s.apiLogout)
	})
}

func (s *Server) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.engine.PasswordSignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch res.Status {
	case shopauth.SignInSucceeded:
		pair, err := s.engine.IssueTokens(r.Context(), res.User)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.logger.Info("api sign-in", zap.String("user_id", res.User.ID))
		writeJSON(w, http.StatusOK, pair)
	case shopauth.SignInLockedOut:
		writeMessage(w, http.StatusForbidden, "Account is locked out, please try again later")
	case shopauth.SignInNotAllowed:
		writeMessage(w, http.StatusForbidden, "Account is not allowed to sign in")
	case shopauth.SignInRequiresTwoFactor:
		writeMessage(w, http.StatusUnauthorized, "Two-factor authentication required")
	default:
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
	}
}

func (s *Server) apiRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	dob, err := parseDate("dateOfBirth", req.DateOfBirth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	_, err = s.engine.Register(r.Context(), shopauth.RegisterRequest{
		Profile: shopauth.Profile{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			Email:       req.Email,
			DateOfBirth: dob,
		},
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		if errors.Is(err, shopauth.ErrDeliveryFailure) {
			writeMessage(w, http.StatusServiceUnavailable, "Account created, but the confirmation email could not be sent")
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "User registered successfully. Please check your email to confirm your account.")
}

func (s *Server) apiRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	pair, err := s.engine.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		if shopauth.KindOf(err) == shopauth.KindTokenInvalid || errors.Is(err, shopauth.ErrUserNotFound) {
			writeMessage(w, http.StatusUnauthorized, "Invalid access token or refresh token")
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) apiUserInfo(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	profile, err := s.engine.Profile(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, shopauth.ErrUserNotFound) {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) apiChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		s.writeError(w, r, confirmMismatch())
		return
	}

	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := s.engine.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, shopauth.ErrUserNotFound) {
			writeMessage(w, http.StatusNotFound, "User not found")
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

func (s *Server) apiLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := s.engine.RevokeRefresh(r.Context(), p.UserID); err != nil && !errors.Is(err, shopauth.ErrUserNotFound) {
		s.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

// parseDate accepts YYYY-MM-DD. Empty input is nil.
func parseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, &shopauth.ValidationError{Errors: []shopauth.FieldError{{Field: field, Message: "The date of birth is not a valid date."}}}
	}
	return &t, nil
}

func confirmMismatch() error {
	return &shopauth.ValidationError{Errors: []shopauth.FieldError{{
		Field:   "ConfirmPassword",
		Message: "The new password and confirmation password do not match.",
	}}}
}
