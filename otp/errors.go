package otp

import "errors"

var (
	// ErrExpired is returned when the challenge passed its expiry. The challenge is cleared.
	ErrExpired = errors.New("otp expired")
	// ErrAttemptsExceeded is returned once the attempt cap is reached. The challenge is cleared.
	ErrAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrInvalid is returned for a wrong code, a consumed challenge, or no challenge at all.
	ErrInvalid = errors.New("otp invalid")
	// ErrTypeMismatch is returned when the live challenge was issued for another purpose.
	ErrTypeMismatch = errors.New("otp purpose mismatch")
	// ErrMethodUnavailable is returned when the user cannot receive the requested method.
	ErrMethodUnavailable = errors.New("otp method unavailable")
	// ErrTOTPAlreadyEnabled is returned when setup starts while TOTP is active.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")
	// ErrTOTPNotEnabled is returned by operations that need an enabled TOTP secret.
	ErrTOTPNotEnabled = errors.New("totp not enabled")
	// ErrNoPendingSetup is returned when completing a setup that was never started.
	ErrNoPendingSetup = errors.New("totp setup not started")
)
