package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/otp"
)

// ErrorBody is the JSON error envelope written by this package.
type ErrorBody struct {
	Code             string       `json:"code"`
	Message          string       `json:"message"`
	Purpose          string       `json:"purpose,omitempty"`
	Reasons          []string     `json:"reasons,omitempty"`
	AvailableMethods []otp.Method `json:"available_methods,omitempty"`
	RetryAfterMin    int          `json:"retry_after_minutes,omitempty"`
}

// Status maps an engine error to an HTTP status and a stable error code.
func Status(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, authgate.ErrAccountLocked):
		return http.StatusLocked, "account_locked"
	case errors.Is(err, authgate.ErrAccountNotActive):
		return http.StatusForbidden, "account_not_active"
	case errors.Is(err, authgate.ErrDeviceVerificationRequired):
		return http.StatusForbidden, "device_verification_required"
	case errors.Is(err, authgate.ErrOTPRequired):
		return http.StatusForbidden, "otp_required"
	case errors.Is(err, authgate.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, authgate.ErrTokenMismatch):
		return http.StatusUnauthorized, "token_mismatch"
	case errors.Is(err, authgate.ErrSessionExpired):
		return http.StatusUnauthorized, "session_expired"
	case errors.Is(err, authgate.ErrTokenExpired):
		return http.StatusUnauthorized, "token_expired"
	case errors.Is(err, authgate.ErrTokenRevoked):
		return http.StatusUnauthorized, "token_revoked"
	case errors.Is(err, authgate.ErrTokenInvalid):
		return http.StatusUnauthorized, "token_invalid"
	case errors.Is(err, authgate.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, authgate.ErrOTPExpired):
		return http.StatusUnauthorized, "otp_expired"
	case errors.Is(err, authgate.ErrOTPAttemptsExceeded):
		return http.StatusTooManyRequests, "otp_attempts_exceeded"
	case errors.Is(err, authgate.ErrOTPTypeMismatch):
		return http.StatusBadRequest, "otp_type_mismatch"
	case errors.Is(err, authgate.ErrOTPInvalid):
		return http.StatusUnauthorized, "otp_invalid"
	case errors.Is(err, authgate.ErrOTPMethodUnavailable):
		return http.StatusBadRequest, "otp_method_unavailable"
	case errors.Is(err, authgate.ErrDeviceNotFound), errors.Is(err, authgate.ErrSessionNotFound), errors.Is(err, authgate.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, authgate.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteError writes err as a JSON ErrorBody. Internal errors are not echoed.
func WriteError(w http.ResponseWriter, err error) {
	status, code := Status(err)
	body := ErrorBody{Code: code, Message: http.StatusText(status)}
	if status < http.StatusInternalServerError {
		body.Message = err.Error()
	}

	var otpErr *authgate.OTPRequiredError
	if errors.As(err, &otpErr) {
		body.Purpose = otpErr.Purpose
		body.Reasons = otpErr.Reasons
		body.AvailableMethods = otpErr.AvailableMethods
	}
	var locked *authgate.LockedError
	if errors.As(err, &locked) {
		body.RetryAfterMin = locked.RemainingMinutes()
		w.Header().Set("Retry-After", strconv.Itoa(int(locked.Remaining.Seconds())))
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
	}
	WriteJSON(w, status, body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
