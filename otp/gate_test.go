package otp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/authgate/policy"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(Settings{
		Key:                       []byte("0123456789abcdef0123456789abcdef"),
		EnforceDeviceVerification: true,
		Issuer:                    "shop",
		TOTPSkew:                  1,
		BackupCodeCount:           4,
		BackupCodeCost:            bcrypt.MinCost,
	}, nil)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestIssueAndVerifySingleUse(t *testing.T) {
	g := newTestGate(t)
	now := time.Now()
	var state State

	code, ch, err := g.Issue(&state, "u1", "login", MethodEmail, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) != DefaultCodeDigits {
		t.Fatalf("expected %d digit code, got %q", DefaultCodeDigits, code)
	}
	if strings.Contains(state.Challenge.CodeHash, code) {
		t.Fatal("challenge must not persist the plaintext code")
	}
	if !ch.ExpiresAt.Equal(now.Add(DefaultCodeTTL)) {
		t.Fatalf("unexpected expiry %v", ch.ExpiresAt)
	}

	if err := g.Verify(&state, "u1", code, "login", now.Add(time.Minute)); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if state.Challenge.CodeHash != "" {
		t.Fatal("expected code material discarded after verification")
	}
	if err := g.Verify(&state, "u1", code, "login", now.Add(time.Minute)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected second verification to fail with ErrInvalid, got %v", err)
	}
}

func TestVerifyAttemptsExceededIsSticky(t *testing.T) {
	g := newTestGate(t)
	now := time.Now()
	var state State
	code, _, err := g.Issue(&state, "u1", "payment", MethodSMS, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	for i := 1; i < DefaultMaxAttempts; i++ {
		if err := g.Verify(&state, "u1", wrong, "payment", now); !errors.Is(err, ErrInvalid) {
			t.Fatalf("attempt %d: expected ErrInvalid, got %v", i, err)
		}
		if state.Challenge.Cleared != "" {
			t.Fatalf("attempt %d: challenge cleared too early", i)
		}
	}
	if err := g.Verify(&state, "u1", wrong, "payment", now); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded on the capped attempt, got %v", err)
	}
	if err := g.Verify(&state, "u1", code, "payment", now); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected cleared challenge to keep failing with ErrAttemptsExceeded, got %v", err)
	}
}

func TestVerifyExpiredIsSticky(t *testing.T) {
	g := newTestGate(t)
	now := time.Now()
	var state State
	code, _, err := g.Issue(&state, "u1", "login", MethodEmail, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	later := now.Add(DefaultCodeTTL + time.Second)
	if err := g.Verify(&state, "u1", code, "login", later); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if err := g.Verify(&state, "u1", code, "login", now); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected cleared challenge to keep failing with ErrExpired, got %v", err)
	}
}

func TestVerifyPurposeMismatch(t *testing.T) {
	g := newTestGate(t)
	now := time.Now()
	var state State
	code, _, _ := g.Issue(&state, "u1", "login", MethodEmail, now)

	if err := g.Verify(&state, "u1", code, "delete_account", now); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
	if state.Challenge.Attempts != 0 {
		t.Fatal("purpose mismatch must not consume an attempt")
	}
}

func TestIssueSupersedesPreviousChallenge(t *testing.T) {
	g := newTestGate(t)
	now := time.Now()
	var state State
	first, _, _ := g.Issue(&state, "u1", "login", MethodEmail, now)
	second, _, _ := g.Issue(&state, "u1", "login", MethodEmail, now.Add(time.Second))

	if first != second {
		if err := g.Verify(&state, "u1", first, "login", now.Add(2*time.Second)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("expected superseded code to fail, got %v", err)
		}
	}
	if err := g.Verify(&state, "u1", second, "login", now.Add(2*time.Second)); err != nil {
		t.Fatalf("expected latest code to verify, got %v", err)
	}
}

func TestIsSatisfiedFreshness(t *testing.T) {
	g := newTestGate(t)
	now := time.Now()
	var state State
	code, _, _ := g.Issue(&state, "u1", "change_password", MethodEmail, now)
	if err := g.Verify(&state, "u1", code, "change_password", now); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if !g.IsSatisfied(state, "change_password", now.Add(9*time.Minute)) {
		t.Fatal("expected satisfied within freshness window")
	}
	if g.IsSatisfied(state, "delete_account", now) {
		t.Fatal("verification must not satisfy another purpose")
	}
	if g.IsSatisfied(state, "change_password", now.Add(11*time.Minute)) {
		t.Fatal("expected stale verification to be unsatisfied")
	}
}

func TestRequirementFor(t *testing.T) {
	g := newTestGate(t)
	ctx := context.Background()

	d, err := g.RequirementFor(ctx, RequirementInput{
		Operation: "change_password",
		MFA:       MFAConfig{RequireForSensitiveOps: true},
		Device:    policy.Device{Known: true, Trusted: true},
	})
	if err != nil || !d.Required || len(d.Reasons) == 0 || d.Reasons[0] != policy.ReasonSensitiveOperation {
		t.Fatalf("unexpected decision %+v err=%v", d, err)
	}

	d, _ = g.RequirementFor(ctx, RequirementInput{
		Operation: "view_orders",
		Device:    policy.Device{Known: true, Trusted: true},
	})
	if d.Required {
		t.Fatalf("expected no requirement, got %+v", d)
	}
}

func TestTOTPTwoPhaseSetup(t *testing.T) {
	g := newTestGate(t)
	now := time.Now()
	var state State

	setup, err := g.BeginTOTPSetup(&state, "alice@example.com", now)
	if err != nil {
		t.Fatalf("BeginTOTPSetup: %v", err)
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning uri %q", setup.URI)
	}
	if state.TOTP.Enabled || state.MFA.Enabled {
		t.Fatal("begin must not enable anything")
	}

	if _, err := g.CompleteTOTPSetup(&state, "000000", now); !errors.Is(err, ErrInvalid) {
		code, _ := totp.GenerateCode(setup.Secret, now)
		if code != "000000" {
			t.Fatalf("expected ErrInvalid for wrong code, got %v", err)
		}
	}

	code, err := totp.GenerateCode(setup.Secret, now)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	backup, err := g.CompleteTOTPSetup(&state, code, now)
	if err != nil {
		t.Fatalf("CompleteTOTPSetup: %v", err)
	}
	if !state.TOTP.Enabled || !state.MFA.Enabled || state.MFA.PreferredMethod != MethodTOTP {
		t.Fatalf("expected totp enabled, got %+v", state)
	}
	if len(backup) != 4 || state.TOTP.RemainingBackupCodes() != 4 {
		t.Fatalf("expected 4 backup codes, got %d", len(backup))
	}
	for i, h := range state.TOTP.BackupCodes {
		if h.Hash == backup[i] || strings.Contains(h.Hash, canonicalBackupCode(backup[i])) {
			t.Fatal("backup codes must be stored hashed")
		}
	}

	if !g.ConsumeBackupCode(&state, strings.ToLower(backup[1]), now) {
		t.Fatal("expected backup code to be accepted")
	}
	if g.ConsumeBackupCode(&state, backup[1], now) {
		t.Fatal("expected backup code to be single-use")
	}
	if state.TOTP.RemainingBackupCodes() != 3 {
		t.Fatalf("expected 3 remaining, got %d", state.TOTP.RemainingBackupCodes())
	}
}

func TestTOTPChallengeRejectsReplay(t *testing.T) {
	g := newTestGate(t)
	now := time.Now()
	var state State
	setup, _ := g.BeginTOTPSetup(&state, "bob", now)
	setupCode, _ := totp.GenerateCode(setup.Secret, now)
	if _, err := g.CompleteTOTPSetup(&state, setupCode, now); err != nil {
		t.Fatalf("CompleteTOTPSetup: %v", err)
	}

	if _, _, err := g.Issue(&state, "u1", "login", MethodTOTP, now); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := g.Verify(&state, "u1", setupCode, "login", now); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected replayed step to be rejected, got %v", err)
	}

	next := now.Add(totpPeriod * time.Second)
	code, _ := totp.GenerateCode(setup.Secret, next)
	if err := g.Verify(&state, "u1", code, "login", next); err != nil {
		t.Fatalf("expected next step to verify, got %v", err)
	}
}

func TestIssueTOTPWithoutEnrollment(t *testing.T) {
	g := newTestGate(t)
	var state State
	if _, _, err := g.Issue(&state, "u1", "login", MethodTOTP, time.Now()); !errors.Is(err, ErrMethodUnavailable) {
		t.Fatalf("expected ErrMethodUnavailable, got %v", err)
	}
}

func TestAvailableMethods(t *testing.T) {
	state := State{MFA: MFAConfig{PreferredMethod: MethodSMS}}
	got := AvailableMethods(state, true, true)
	if len(got) != 2 || got[0] != MethodSMS || got[1] != MethodEmail {
		t.Fatalf("unexpected methods %v", got)
	}
	if got := AvailableMethods(State{}, false, false); len(got) != 0 {
		t.Fatalf("expected no methods, got %v", got)
	}
}

func TestTOTPSetupDiscardsSecretAfterMaxAttempts(t *testing.T) {
	g := newTestGate(t)
	now := time.Now()
	var state State

	setup, err := g.BeginTOTPSetup(&state, "alice@example.com", now)
	if err != nil {
		t.Fatalf("BeginTOTPSetup: %v", err)
	}
	good, err := totp.GenerateCode(setup.Secret, now)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	wrong := unusedTOTPCode(t, setup.Secret, now)

	for i := 1; i < DefaultMaxAttempts; i++ {
		if _, err := g.CompleteTOTPSetup(&state, wrong, now); !errors.Is(err, ErrInvalid) {
			t.Fatalf("attempt %d: expected ErrInvalid, got %v", i, err)
		}
		if state.TOTP.PendingAttempts != i {
			t.Fatalf("expected %d pending attempts, got %d", i, state.TOTP.PendingAttempts)
		}
	}
	if _, err := g.CompleteTOTPSetup(&state, wrong, now); !errors.Is(err, ErrAttemptsExceeded) {
		t.Fatalf("expected ErrAttemptsExceeded, got %v", err)
	}
	if state.TOTP.PendingSecret != "" || state.TOTP.PendingSince != nil || state.TOTP.PendingAttempts != 0 {
		t.Fatalf("expected pending setup to be discarded, got %+v", state.TOTP)
	}
	if _, err := g.CompleteTOTPSetup(&state, good, now); !errors.Is(err, ErrNoPendingSetup) {
		t.Fatalf("expected ErrNoPendingSetup after exhaustion, got %v", err)
	}

	if _, err := g.BeginTOTPSetup(&state, "alice@example.com", now); err != nil {
		t.Fatalf("restart BeginTOTPSetup: %v", err)
	}
	if state.TOTP.PendingAttempts != 0 {
		t.Fatal("restarting setup must reset the attempt count")
	}
}

// unusedTOTPCode returns a code outside every window the skew accepts.
func unusedTOTPCode(t *testing.T, secret string, now time.Time) string {
	t.Helper()
	taken := map[string]bool{}
	for _, d := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		c, err := totp.GenerateCode(secret, now.Add(d))
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		taken[c] = true
	}
	for _, c := range []string{"000000", "111111", "222222", "333333"} {
		if !taken[c] {
			return c
		}
	}
	t.Fatal("no unused code")
	return ""
}
