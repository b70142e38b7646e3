package otp

import "time"

// Method is an additional-factor delivery or verification channel.
type Method string

const (
	// MethodTOTP verifies against the user's authenticator app secret.
	MethodTOTP Method = "totp"
	// MethodEmail delivers a generated code by email.
	MethodEmail Method = "email"
	// MethodSMS delivers a generated code by SMS.
	MethodSMS Method = "sms"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodTOTP, MethodEmail, MethodSMS:
		return true
	default:
		return false
	}
}

// Reasons a challenge was cleared without being verified.
const (
	ClearedExpired          = "expired"
	ClearedAttemptsExceeded = "attempts_exceeded"
)

// Challenge is the single live OTP challenge of a user.
//
// CodeHash is a keyed hash of the code and is emptied once the challenge is
// verified or cleared. Cleared keeps the terminal reason so later verification
// attempts keep reporting it.
type Challenge struct {
	ID          string     `json:"id"`
	Method      Method     `json:"method"`
	Purpose     string     `json:"purpose"`
	CodeHash    string     `json:"code_hash,omitempty"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	Cleared     string     `json:"cleared,omitempty"`
}

func (c *Challenge) clear(reason string) {
	c.Cleared = reason
	c.CodeHash = ""
}

// MFAConfig is the user's additional-factor configuration.
type MFAConfig struct {
	Enabled                bool   `json:"enabled"`
	PreferredMethod        Method `json:"preferred_method,omitempty"`
	RequireForLogin        bool   `json:"require_for_login"`
	RequireForSensitiveOps bool   `json:"require_for_sensitive_ops"`
}

// BackupCode is one salted, single-use recovery code hash.
type BackupCode struct {
	Hash   string     `json:"hash"`
	UsedAt *time.Time `json:"used_at,omitempty"`
}

// TOTPState holds the enabled and pending authenticator secrets.
type TOTPState struct {
	Enabled       bool       `json:"enabled"`
	Secret        string     `json:"secret,omitempty"`
	PendingSecret string     `json:"pending_secret,omitempty"`
	PendingSince  *time.Time `json:"pending_since,omitempty"`
	// PendingAttempts counts wrong codes against the pending secret.
	PendingAttempts int          `json:"pending_attempts,omitempty"`
	LastUsedStep    int64        `json:"last_used_step,omitempty"`
	BackupCodes     []BackupCode `json:"backup_codes,omitempty"`
}

// RemainingBackupCodes counts unused backup codes.
func (t TOTPState) RemainingBackupCodes() int {
	n := 0
	for _, code := range t.BackupCodes {
		if code.UsedAt == nil {
			n++
		}
	}
	return n
}

// State is the OTP portion of the user security record.
type State struct {
	Challenge *Challenge `json:"challenge,omitempty"`
	MFA       MFAConfig  `json:"mfa"`
	TOTP      TOTPState  `json:"totp"`
}
