package password

import "errors"

var (
	// ErrTooShort is returned by Hash for passwords below MinBytes.
	ErrTooShort = errors.New("password: too short")
	// ErrTooLong is returned by Hash and Verify for passwords above the
	// configured MaxBytes. Verify rejects them before running Argon2.
	ErrTooLong = errors.New("password: too long")
	// ErrMalformedHash is returned for hashes that are not argon2id PHC
	// strings this package can decode.
	ErrMalformedHash = errors.New("password: malformed hash")
)
