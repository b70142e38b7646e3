package authgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/credential"
	"github.com/MrEthical07/authgate/device"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/store"
)

var (
	// ErrInvalidCredentials is returned for an unknown identifier and for a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by every *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountNotActive is returned when the account status is not active.
	ErrAccountNotActive = errors.New("account not active")
	// ErrUserNotFound is returned by UserProvider implementations for unknown users.
	ErrUserNotFound = errors.New("user not found")
	// ErrDeviceVerificationRequired is returned when the risk engine blocks a request.
	ErrDeviceVerificationRequired = errors.New("device verification required")
	// ErrOTPRequired is returned by OTP gates when a fresh verification is missing.
	ErrOTPRequired = errors.New("otp required")
	// ErrForbidden is returned when an authorizer denies access.
	ErrForbidden = errors.New("forbidden")
	// ErrEngineNotReady is returned by a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidAccountStatus is returned by SetAccountStatus for unknown statuses.
	ErrInvalidAccountStatus = errors.New("invalid account status")
	// ErrDeviceNotFound is returned for unknown or removed devices.
	ErrDeviceNotFound = device.ErrDeviceNotFound
	// ErrSessionNotFound is returned for unknown sessions.
	ErrSessionNotFound = session.ErrSessionNotFound

	ErrTokenInvalid  = credential.ErrTokenInvalid
	ErrTokenExpired  = credential.ErrTokenExpired
	ErrTokenRevoked  = credential.ErrTokenRevoked
	ErrTokenMismatch = credential.ErrTokenMismatch

	ErrOTPExpired           = otp.ErrExpired
	ErrOTPAttemptsExceeded  = otp.ErrAttemptsExceeded
	ErrOTPInvalid           = otp.ErrInvalid
	ErrOTPTypeMismatch      = otp.ErrTypeMismatch
	ErrOTPMethodUnavailable = otp.ErrMethodUnavailable

	ErrTOTPAlreadyEnabled = otp.ErrTOTPAlreadyEnabled
	ErrTOTPNotEnabled     = otp.ErrTOTPNotEnabled
	ErrTOTPNoPendingSetup = otp.ErrNoPendingSetup

	ErrSessionExpired = session.ErrSessionExpired

	// ErrStoreUnavailable wraps every persistence and lock failure.
	ErrStoreUnavailable = store.ErrUnavailable
)

// LockedError reports an active lockout and how long it still lasts.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %d more minute(s)", e.RemainingMinutes())
}

// Is matches ErrAccountLocked.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RemainingMinutes rounds Remaining up to whole minutes.
func (e *LockedError) RemainingMinutes() int {
	if e == nil || e.Remaining <= 0 {
		return 0
	}
	minutes := e.Remaining / time.Minute
	if e.Remaining%time.Minute != 0 {
		minutes++
	}
	return int(minutes)
}

// OTPRequiredError carries the rules that fired and the methods the user can
// complete. It matches ErrOTPRequired.
type OTPRequiredError struct {
	Purpose          string
	Reasons          []string
	AvailableMethods []otp.Method
}

func (e *OTPRequiredError) Error() string {
	return "otp required for " + e.Purpose
}

// Is matches ErrOTPRequired.
func (e *OTPRequiredError) Is(target error) bool {
	return target == ErrOTPRequired
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, store.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
