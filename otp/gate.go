// Package otp implements the one-time passcode gate: requirement decisions,
// challenge issuance and verification, TOTP enrollment and backup codes.
//
// # Challenge lifecycle
//
// A user has at most one challenge. Issuing a new one discards the previous
// challenge. Verification is fail closed: an expired challenge or one that hit
// its attempt cap is cleared and keeps reporting that outcome. A verified
// challenge satisfies its purpose for the freshness window and its code can
// not be used again.
//
// # Architecture boundaries
//
// The gate mutates a caller-owned [State]. Persistence, per-user
// serialization and code delivery are the engine's job.
package otp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authgate/policy"
)

// Default settings.
const (
	DefaultCodeTTL          = 5 * time.Minute
	DefaultFreshness        = 10 * time.Minute
	DefaultMaxAttempts      = 3
	DefaultCodeDigits       = 6
	DefaultBackupCodeCount  = 10
	DefaultBackupCodeLength = 10
)

// DefaultSensitiveOperations lists operations gated when a user enables
// RequireForSensitiveOps.
var DefaultSensitiveOperations = []string{
	"change_password",
	"change_email",
	"delete_account",
	"manage_mfa",
	"manage_devices",
	"add_payment_method",
	"place_order",
	"export_data",
}

// Settings configures a Gate.
type Settings struct {
	Key                       []byte
	CodeTTL                   time.Duration
	Freshness                 time.Duration
	MaxAttempts               int
	CodeDigits                int
	SensitiveOperations       []string
	EnforceDeviceVerification bool
	Issuer                    string
	TOTPSkew                  uint
	BackupCodeCount           int
	BackupCodeLength          int
	BackupCodeCost            int
}

// Gate evaluates requirements and drives challenges.
type Gate struct {
	settings  Settings
	sensitive map[string]struct{}
	policy    policy.Evaluator
}

// NewGate validates settings and fills defaults. A nil evaluator selects
// policy.Default.
func NewGate(settings Settings, evaluator policy.Evaluator) (*Gate, error) {
	if len(settings.Key) < 16 {
		return nil, errors.New("otp: key must be at least 16 bytes")
	}
	if settings.CodeTTL <= 0 {
		settings.CodeTTL = DefaultCodeTTL
	}
	if settings.Freshness <= 0 {
		settings.Freshness = DefaultFreshness
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = DefaultMaxAttempts
	}
	if settings.CodeDigits <= 0 {
		settings.CodeDigits = DefaultCodeDigits
	}
	if settings.CodeDigits > 9 {
		return nil, errors.New("otp: code digits must be at most 9")
	}
	if settings.SensitiveOperations == nil {
		settings.SensitiveOperations = DefaultSensitiveOperations
	}
	if settings.Issuer == "" {
		settings.Issuer = "authgate"
	}
	if settings.BackupCodeCount <= 0 {
		settings.BackupCodeCount = DefaultBackupCodeCount
	}
	if settings.BackupCodeLength <= 0 {
		settings.BackupCodeLength = DefaultBackupCodeLength
	}
	if settings.BackupCodeCost == 0 {
		settings.BackupCodeCost = bcrypt.DefaultCost
	}
	if evaluator == nil {
		evaluator = policy.Default{}
	}

	sensitive := make(map[string]struct{}, len(settings.SensitiveOperations))
	for _, op := range settings.SensitiveOperations {
		sensitive[strings.ToLower(op)] = struct{}{}
	}

	return &Gate{settings: settings, sensitive: sensitive, policy: evaluator}, nil
}

// IsSensitive reports whether operation belongs to the sensitive set.
func (g *Gate) IsSensitive(operation string) bool {
	_, ok := g.sensitive[strings.ToLower(operation)]
	return ok
}

// RequirementInput describes the operation being gated.
type RequirementInput struct {
	Operation string
	MFA       MFAConfig
	Device    policy.Device
	RiskLevel string
}

// RequirementFor decides whether the operation needs a fresh OTP verification.
func (g *Gate) RequirementFor(ctx context.Context, in RequirementInput) (policy.Decision, error) {
	return g.policy.Evaluate(ctx, policy.Input{
		Operation: in.Operation,
		Sensitive: g.IsSensitive(in.Operation),
		MFA: policy.MFA{
			Enabled:                in.MFA.Enabled,
			RequireForLogin:        in.MFA.RequireForLogin,
			RequireForSensitiveOps: in.MFA.RequireForSensitiveOps,
		},
		Device:                    in.Device,
		EnforceDeviceVerification: g.settings.EnforceDeviceVerification,
		RiskLevel:                 in.RiskLevel,
	})
}

// IsSatisfied reports whether the current challenge was verified for purpose
// within the freshness window.
func (g *Gate) IsSatisfied(state State, purpose string, now time.Time) bool {
	c := state.Challenge
	if c == nil || !c.Verified || c.VerifiedAt == nil || c.Purpose != purpose {
		return false
	}
	return now.Sub(*c.VerifiedAt) <= g.settings.Freshness
}

// Issue replaces any prior challenge with a new one for purpose. For delivered
// methods the plaintext code is returned once and only its keyed hash is
// kept. For TOTP the returned code is empty.
func (g *Gate) Issue(state *State, userID, purpose string, method Method, now time.Time) (string, Challenge, error) {
	if !method.Valid() {
		return "", Challenge{}, ErrMethodUnavailable
	}
	if method == MethodTOTP && !state.TOTP.Enabled {
		return "", Challenge{}, ErrMethodUnavailable
	}

	c := Challenge{
		ID:          uuid.NewString(),
		Method:      method,
		Purpose:     purpose,
		IssuedAt:    now,
		ExpiresAt:   now.Add(g.settings.CodeTTL),
		MaxAttempts: g.settings.MaxAttempts,
	}

	var code string
	if method != MethodTOTP {
		var err error
		code, err = deriveCode(g.settings.Key, userID, purpose, now, g.settings.CodeDigits)
		if err != nil {
			return "", Challenge{}, err
		}
		c.CodeHash = codeHash(g.settings.Key, userID, purpose, now, code)
	}

	state.Challenge = &c
	return code, c, nil
}

// Verify checks code against the user's challenge for purpose.
func (g *Gate) Verify(state *State, userID, code, purpose string, now time.Time) error {
	c := state.Challenge
	if c == nil {
		return ErrInvalid
	}
	switch c.Cleared {
	case ClearedExpired:
		return ErrExpired
	case ClearedAttemptsExceeded:
		return ErrAttemptsExceeded
	}
	if c.Verified {
		return ErrInvalid
	}
	if c.Purpose != purpose {
		return ErrTypeMismatch
	}
	if !now.Before(c.ExpiresAt) {
		c.clear(ClearedExpired)
		return ErrExpired
	}
	if c.Attempts >= c.MaxAttempts {
		c.clear(ClearedAttemptsExceeded)
		return ErrAttemptsExceeded
	}

	if !g.matches(state, c, userID, code, now) {
		c.Attempts++
		if c.Attempts >= c.MaxAttempts {
			c.clear(ClearedAttemptsExceeded)
			return ErrAttemptsExceeded
		}
		return ErrInvalid
	}

	verifiedAt := now
	c.Verified = true
	c.VerifiedAt = &verifiedAt
	c.CodeHash = ""
	return nil
}

func (g *Gate) matches(state *State, c *Challenge, userID, code string, now time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	if c.Method == MethodTOTP {
		if g.VerifyTOTP(state, code, now) {
			return true
		}
		return g.ConsumeBackupCode(state, code, now)
	}
	if c.CodeHash == "" {
		return false
	}
	return hashEqual(c.CodeHash, codeHash(g.settings.Key, userID, c.Purpose, c.IssuedAt, code))
}

// AvailableMethods lists the methods the user can complete, preferred first.
func AvailableMethods(state State, hasEmail, hasPhone bool) []Method {
	var out []Method
	add := func(m Method) {
		for _, existing := range out {
			if existing == m {
				return
			}
		}
		out = append(out, m)
	}
	usable := func(m Method) bool {
		switch m {
		case MethodTOTP:
			return state.TOTP.Enabled
		case MethodEmail:
			return hasEmail
		case MethodSMS:
			return hasPhone
		}
		return false
	}

	if pref := state.MFA.PreferredMethod; usable(pref) {
		add(pref)
	}
	for _, m := range []Method{MethodTOTP, MethodEmail, MethodSMS} {
		if usable(m) {
			add(m)
		}
	}
	return out
}
