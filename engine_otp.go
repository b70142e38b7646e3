package authgate

import (
	"context"
	"strconv"
	"strings"

	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/policy"
	"github.com/MrEthical07/authgate/store"
)

// RequestOTP issues a challenge for purpose, replacing any earlier one. An
// empty method selects the user's preferred method. For email and SMS the
// code is handed to the OTPSender after the user lock is released; a
// delivery failure is reported in ChallengeResult.DeliveryErr and the
// challenge stays valid.
func (e *Engine) RequestOTP(ctx context.Context, userID, purpose string, method otp.Method) (*ChallengeResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, ErrOTPTypeMismatch
	}
	user, err := e.lookupUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status != AccountActive {
		return nil, ErrAccountNotActive
	}

	var result *ChallengeResult
	err = e.withUser(ctx, user.UserID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		result, err = e.issueChallenge(tx, user, state, purpose, method)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyOTP checks code against the live challenge for purpose. A verified
// challenge satisfies RequireOTP for the freshness window.
func (e *Engine) VerifyOTP(ctx context.Context, userID, purpose, code string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.withUser(ctx, userID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		return e.verifyChallenge(tx, state, purpose, code)
	})
}

// RequireOTP returns nil when the operation needs no additional factor or a
// challenge for purpose was verified within the freshness window. Otherwise it
// returns an *OTPRequiredError listing the fired rules and the methods the
// user can complete, or ErrOTPMethodUnavailable when there is none.
// RequireOTP records an otp_required event for the user when it denies.
func (e *Engine) RequireOTP(ctx context.Context, auth *AuthResult, purpose string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if auth == nil || auth.User.UserID == "" {
		return ErrTokenInvalid
	}
	user := auth.User

	return e.withUser(ctx, user.UserID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		known, trusted, err := e.devices.Status(tx.ctx, user.UserID, auth.DeviceID)
		if err != nil {
			return err
		}
		decision, err := e.gate.RequirementFor(tx.ctx, otp.RequirementInput{
			Operation: purpose,
			MFA:       state.OTP.MFA,
			Device:    policy.Device{Known: known, Trusted: trusted},
			RiskLevel: auth.Risk.Level,
		})
		if err != nil {
			return err
		}
		if !decision.Required || e.gate.IsSatisfied(state.OTP, purpose, tx.now) {
			return nil
		}

		available := e.availableMethods(user, state.OTP)
		e.metricInc(MetricOTPRequired)
		tx.record(EventOTPRequired, store.SeverityLow, auth.SessionID, false, map[string]string{
			"purpose": purpose,
			"reasons": strings.Join(decision.Reasons, ","),
			"methods": strconv.Itoa(len(available)),
		})
		if len(available) == 0 {
			return ErrOTPMethodUnavailable
		}
		return &OTPRequiredError{
			Purpose:          purpose,
			Reasons:          decision.Reasons,
			AvailableMethods: available,
		}
	})
}

// SetMFAConfig replaces the user's MFA enforcement flags. A preferred method
// must be one the user can currently complete.
func (e *Engine) SetMFAConfig(ctx context.Context, userID string, cfg otp.MFAConfig) error {
	if e == nil {
		return ErrEngineNotReady
	}
	user, err := e.lookupUser(ctx, userID)
	if err != nil {
		return err
	}
	return e.withUser(ctx, user.UserID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		if cfg.PreferredMethod != "" && !containsMethod(e.availableMethods(user, state.OTP), cfg.PreferredMethod) {
			return ErrOTPMethodUnavailable
		}
		state.OTP.MFA = cfg
		tx.markDirty()
		tx.record(EventMFAUpdated, store.SeverityMedium, "", true, map[string]string{
			"enabled":           boolString(cfg.Enabled),
			"preferred_method":  string(cfg.PreferredMethod),
			"require_for_login": boolString(cfg.RequireForLogin),
			"require_for_ops":   boolString(cfg.RequireForSensitiveOps),
		})
		return nil
	})
}

// issueChallenge replaces the user's challenge and schedules delivery. Must be
// called under the user lock.
func (e *Engine) issueChallenge(tx *userTx, user UserRecord, state *store.SecurityState, purpose string, method otp.Method) (*ChallengeResult, error) {
	available := e.availableMethods(user, state.OTP)
	if method == "" {
		if len(available) == 0 {
			return nil, ErrOTPMethodUnavailable
		}
		method = available[0]
	}
	if !containsMethod(available, method) {
		return nil, ErrOTPMethodUnavailable
	}

	code, challenge, err := e.gate.Issue(&state.OTP, user.UserID, purpose, method, tx.now)
	if err != nil {
		return nil, err
	}
	tx.markDirty()
	e.metricInc(MetricOTPIssued)
	tx.record(EventOTPIssued, store.SeverityLow, "", true, map[string]string{
		"purpose": purpose,
		"method":  string(method),
	})

	result := &ChallengeResult{
		ChallengeID: challenge.ID,
		Method:      method,
		Purpose:     purpose,
		ExpiresAt:   challenge.ExpiresAt,
	}
	if method == otp.MethodTOTP {
		return result, nil
	}

	ctx := context.WithoutCancel(tx.ctx)
	req := tx.req
	tx.afterUnlock(func() {
		if _, err := e.sender.Send(ctx, user, purpose, method, code); err != nil {
			result.DeliveryErr = err
			e.metricInc(MetricOTPDeliveryFailure)
			e.log.WithError(err).WithField("user_id", user.UserID).WithField("method", method).Warn("authgate: otp delivery failed")
			e.emitAudit(ctx, []AuditEvent{{
				ID:        newOrderedID(),
				Timestamp: e.now().UTC(),
				EventType: EventOTPDeliveryFailed,
				Severity:  string(store.SeverityMedium),
				UserID:    user.UserID,
				DeviceID:  req.DeviceID,
				IP:        req.IP,
				Error:     err.Error(),
				Metadata:  map[string]string{"purpose": purpose, "method": string(method)},
			}})
		}
	})
	return result, nil
}

// verifyChallenge runs one verification and records its outcome. Must be
// called under the user lock.
func (e *Engine) verifyChallenge(tx *userTx, state *store.SecurityState, purpose, code string) error {
	backupLeft := state.OTP.TOTP.RemainingBackupCodes()
	err := e.gate.Verify(&state.OTP, tx.userID, code, purpose, tx.now)
	tx.markDirty()
	if err != nil {
		e.metricInc(MetricOTPFailure)
		tx.record(EventOTPFailed, store.SeverityMedium, "", false, map[string]string{
			"purpose": purpose,
			"error":   err.Error(),
		})
		return err
	}
	e.metricInc(MetricOTPVerified)
	meta := map[string]string{"purpose": purpose}
	if state.OTP.TOTP.RemainingBackupCodes() < backupLeft {
		e.metricInc(MetricBackupCodeUsed)
		meta["backup_code"] = "true"
	}
	tx.record(EventOTPVerified, store.SeverityLow, "", true, meta)
	return nil
}

func containsMethod(methods []otp.Method, m otp.Method) bool {
	for _, candidate := range methods {
		if candidate == m {
			return true
		}
	}
	return false
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
