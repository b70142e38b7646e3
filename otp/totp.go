package otp

import (
	"crypto/subtle"
	"strings"
	"time"

	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpPeriod = 30

// Setup is the first phase of TOTP enrollment.
type Setup struct {
	Secret string
	URI    string
}

func (g *Gate) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      g.settings.TOTPSkew,
		Digits:    pqotp.DigitsSix,
		Algorithm: pqotp.AlgorithmSHA1,
	}
}

// BeginTOTPSetup stores a pending secret and returns its provisioning URI.
// Nothing is enabled until CompleteTOTPSetup succeeds.
func (g *Gate) BeginTOTPSetup(state *State, account string, now time.Time) (Setup, error) {
	if state.TOTP.Enabled {
		return Setup{}, ErrTOTPAlreadyEnabled
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.settings.Issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      pqotp.DigitsSix,
		Algorithm:   pqotp.AlgorithmSHA1,
	})
	if err != nil {
		return Setup{}, err
	}

	started := now
	state.TOTP.PendingSecret = key.Secret()
	state.TOTP.PendingSince = &started
	state.TOTP.PendingAttempts = 0
	return Setup{Secret: key.Secret(), URI: key.URL()}, nil
}

// CompleteTOTPSetup verifies one code against the pending secret, enables TOTP
// and returns a fresh set of plaintext backup codes. After MaxAttempts wrong
// codes the pending secret is discarded and setup must start again.
func (g *Gate) CompleteTOTPSetup(state *State, code string, now time.Time) ([]string, error) {
	if state.TOTP.Enabled {
		return nil, ErrTOTPAlreadyEnabled
	}
	if state.TOTP.PendingSecret == "" {
		return nil, ErrNoPendingSetup
	}
	step, ok := g.matchTOTP(state.TOTP.PendingSecret, code, now)
	if !ok {
		state.TOTP.PendingAttempts++
		if state.TOTP.PendingAttempts >= g.settings.MaxAttempts {
			state.TOTP.PendingSecret = ""
			state.TOTP.PendingSince = nil
			state.TOTP.PendingAttempts = 0
			return nil, ErrAttemptsExceeded
		}
		return nil, ErrInvalid
	}

	codes, hashes, err := g.newBackupCodes()
	if err != nil {
		return nil, err
	}

	state.TOTP = TOTPState{
		Enabled:      true,
		Secret:       state.TOTP.PendingSecret,
		LastUsedStep: step,
		BackupCodes:  hashes,
	}
	state.MFA.Enabled = true
	if state.MFA.PreferredMethod == "" {
		state.MFA.PreferredMethod = MethodTOTP
	}
	return codes, nil
}

// DisableTOTP removes the secret and backup codes. MFA stays enabled only when
// another method remains preferred.
func (g *Gate) DisableTOTP(state *State) {
	state.TOTP = TOTPState{}
	if state.MFA.PreferredMethod == MethodTOTP {
		state.MFA.PreferredMethod = ""
		state.MFA.Enabled = false
	}
	if state.Challenge != nil && state.Challenge.Method == MethodTOTP && !state.Challenge.Verified {
		state.Challenge = nil
	}
}

// VerifyTOTP checks code against the enabled secret and rejects a replay of
// an already used time step.
func (g *Gate) VerifyTOTP(state *State, code string, now time.Time) bool {
	if !state.TOTP.Enabled || state.TOTP.Secret == "" {
		return false
	}
	step, ok := g.matchTOTP(state.TOTP.Secret, code, now)
	if !ok || step <= state.TOTP.LastUsedStep {
		return false
	}
	state.TOTP.LastUsedStep = step
	return true
}

// matchTOTP returns the time step whose code equals the candidate.
func (g *Gate) matchTOTP(secret, code string, now time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != pqotp.DigitsSix.Length() {
		return 0, false
	}
	opts := g.validateOpts()
	skew := int64(opts.Skew)
	base := now.Unix() / totpPeriod
	for offset := -skew; offset <= skew; offset++ {
		step := base + offset
		if step < 0 {
			continue
		}
		generated, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0).UTC(), opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}
