package authgate

import (
	"context"
	"strconv"

	"github.com/MrEthical07/authgate/store"
)

// BeginTOTPSetup stores a pending authenticator secret and returns it with
// its provisioning URI. Nothing is enabled until CompleteTOTPSetup accepts a
// code generated from the pending secret. Starting again replaces the pending
// secret. It fails with otp.ErrTOTPAlreadyEnabled while TOTP is active.
func (e *Engine) BeginTOTPSetup(ctx context.Context, userID string) (*TOTPSetup, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	user, err := e.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status != AccountActive {
		return nil, ErrAccountNotActive
	}

	account := user.Email
	if account == "" {
		account = user.Identifier
	}
	if account == "" {
		account = user.UserID
	}

	var out *TOTPSetup
	err = e.withUser(ctx, user.UserID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		setup, err := e.gate.BeginTOTPSetup(&state.OTP, account, tx.now)
		if err != nil {
			return err
		}
		tx.markDirty()
		tx.record(EventTOTPSetupStarted, store.SeverityMedium, "", true, nil)
		out = &TOTPSetup{Secret: setup.Secret, URI: setup.URI}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteTOTPSetup verifies code against the pending secret, enables TOTP
// and MFA, and returns the plaintext backup codes. They are shown once; only
// their hashes are kept. Wrong codes count against OTP.MaxAttempts; reaching
// it discards the pending secret.
func (e *Engine) CompleteTOTPSetup(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	var codes []string
	err := e.withUser(ctx, userID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		codes, err = e.gate.CompleteTOTPSetup(&state.OTP, code, tx.now)
		if err != nil {
			tx.markDirty()
			e.metricInc(MetricOTPFailure)
			tx.record(EventOTPFailed, store.SeverityMedium, "", false, map[string]string{
				"purpose": "totp_setup",
				"error":   err.Error(),
			})
			return err
		}
		tx.markDirty()
		e.metricInc(MetricTOTPEnabled)
		tx.record(EventTOTPEnabled, store.SeverityHigh, "", true, map[string]string{
			"backup_codes": strconv.Itoa(len(codes)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// DisableTOTP removes the authenticator secret and backup codes.
func (e *Engine) DisableTOTP(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.withUser(ctx, userID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		if !state.OTP.TOTP.Enabled && state.OTP.TOTP.PendingSecret == "" {
			return nil
		}
		e.gate.DisableTOTP(&state.OTP)
		tx.markDirty()
		tx.record(EventTOTPDisabled, store.SeverityHigh, "", true, nil)
		return nil
	})
}

// RegenerateBackupCodes replaces every backup code and returns the new
// plaintext set.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	var codes []string
	err := e.withUser(ctx, userID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		codes, err = e.gate.RegenerateBackupCodes(&state.OTP)
		if err != nil {
			return err
		}
		tx.markDirty()
		tx.record(EventBackupCodesRegenerated, store.SeverityHigh, "", true, map[string]string{
			"count": strconv.Itoa(len(codes)),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}
