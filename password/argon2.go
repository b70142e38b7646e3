package password

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Limits enforced on configurations and inputs.
const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16

	// MinBytes is the shortest password Hash accepts.
	MinBytes = 10
	// DefaultMaxBytes caps password input when Config.MaxBytes is zero.
	DefaultMaxBytes = 1024
)

// Config holds the Argon2id cost parameters. Memory is in KiB. MaxBytes caps
// the password length so a request cannot make the server run Argon2 over an
// arbitrarily large input; zero selects DefaultMaxBytes.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MaxBytes    int
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password: memory must be >= %d KiB", minMemoryKB)
	case c.Time < 1:
		return fmt.Errorf("password: time must be >= 1")
	case c.Parallelism < 1:
		return fmt.Errorf("password: parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length must be >= %d", minKeyLength)
	case c.MaxBytes != 0 && c.MaxBytes < MinBytes:
		return fmt.Errorf("password: max bytes must be >= %d", MinBytes)
	}
	return nil
}

// Argon2 hashes and verifies passwords. It satisfies authgate.PasswordHasher
// and reports outdated hashes through NeedsUpgrade.
type Argon2 struct {
	config Config
}

// NewArgon2 rejects parameters below the package minimums.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Argon2{config: cfg}, nil
}

// MaxBytes returns the longest password the hasher accepts.
func (a *Argon2) MaxBytes() int { return a.config.MaxBytes }

// Hash returns the PHC encoding of password with a fresh random salt. The
// password bytes are used as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	switch {
	case len(password) < MinBytes:
		return "", ErrTooShort
	case len(password) > a.config.MaxBytes:
		return "", ErrTooLong
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	return phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
		key:         a.derive(password, salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength),
	}.String(), nil
}

// Verify decodes the parameters embedded in encodedHash, so hashes made with
// older settings still verify. The comparison is constant time. Oversized
// input is rejected with ErrTooLong before any hashing, a malformed hash
// wraps ErrMalformedHash, and a wrong password is (false, nil).
func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxBytes {
		return false, ErrTooLong
	}
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	got := a.derive(password, p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(got, p.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash used weaker costs or a different
// key length than the current configuration.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	c := a.config
	return c.Memory > p.memory ||
		c.Time > p.time ||
		c.Parallelism > p.parallelism ||
		int(c.KeyLength) != len(p.key), nil
}

func (a *Argon2) derive(password string, salt []byte, t, m uint32, p uint8, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, t, m, p, keyLen)
}
