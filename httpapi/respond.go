package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/shopauth"
	"github.com/MrEthical07/shopauth/cart"
	"go.uber.org/zap"
)

const (
	msgDeliveryFailed = "Error sending email. Please try again later."
	msgUnavailable    = "Service temporarily unavailable."
)

type messageResponse struct {
	Message string                `json:"message"`
	Errors  []shopauth.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shopauth.ErrStoreUnavailable), errors.Is(err, cart.ErrRedisUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrProductUnavailable):
		return http.StatusBadRequest
	}

	switch shopauth.KindOf(err) {
	case shopauth.KindValidation:
		return http.StatusBadRequest
	case shopauth.KindAuthentication, shopauth.KindTokenInvalid:
		return http.StatusUnauthorized
	case shopauth.KindLockedOut, shopauth.KindNotAllowed:
		return http.StatusForbidden
	case shopauth.KindNotFound:
		return http.StatusNotFound
	case shopauth.KindConflict:
		return http.StatusConflict
	case shopauth.KindDelivery:
		return http.StatusServiceUnavailable
	case shopauth.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {message, errors}. Internal and dependency
// errors are logged and replaced with a fixed message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := messageResponse{Message: err.Error()}

	var ve *shopauth.ValidationError
	if errors.As(err, &ve) {
		body.Message = "One or more validation errors occurred."
		body.Errors = ve.Errors
	}

	switch status {
	case http.StatusInternalServerError:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		body.Message = "An unexpected error occurred."
	case http.StatusServiceUnavailable:
		s.logger.Warn("dependency unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		body.Message = msgUnavailable
		if shopauth.KindOf(err) == shopauth.KindDelivery {
			body.Message = msgDeliveryFailed
		}
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return &shopauth.ValidationError{Errors: []shopauth.FieldError{{Message: "The request body is not valid JSON."}}}
	}
	return nil
}
