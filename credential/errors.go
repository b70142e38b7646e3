package credential

import "errors"

// ErrTokenInvalid is the umbrella failure for unusable tokens. ErrTokenExpired
// and ErrTokenRevoked match it through errors.Is.
var ErrTokenInvalid = errors.New("credential: token invalid")

var (
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired error = &tokenError{msg: "credential: token expired"}
	// ErrTokenRevoked is returned for revoked tokens.
	ErrTokenRevoked error = &tokenError{msg: "credential: token revoked"}
)

// ErrTokenMismatch is returned when a refresh token is presented with a device
// that differs from its stored binding.
var ErrTokenMismatch = errors.New("credential: token device binding mismatch")

type tokenError struct {
	msg string
}

func (e *tokenError) Error() string { return e.msg }

func (e *tokenError) Is(target error) bool { return target == ErrTokenInvalid }
