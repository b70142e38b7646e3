package authgate

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/authgate/credential"
	"github.com/MrEthical07/authgate/device"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/policy"
	"github.com/MrEthical07/authgate/risk"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/store"
)

// Login authenticates a password login.
//
// The checks run in a fixed order: lockout, password, account status, risk,
// OTP requirement. A login that needs an OTP returns a LoginResult with
// OutcomeOTPRequired and a nil error; no session or credential exists yet.
// Resubmitting with OTPCode completes it. Unknown identifiers and wrong
// passwords both return ErrInvalidCredentials, as do passwords longer than
// Password.MaxBytes, which are refused before any lookup or hashing.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if len(req.Password) > e.config.Password.MaxBytes {
		e.metricInc(MetricLoginFailure)
		e.emitAnonymous(ctx, EventLoginFailed, store.SeverityMedium, map[string]string{"reason": "password_too_long"})
		return nil, ErrInvalidCredentials
	}
	identifier := strings.TrimSpace(req.Identifier)

	user, err := e.users.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricStoreUnavailable)
			return nil, unavailable(err)
		}
		// Burn the same hashing time as a real account.
		_, _ = e.hasher.Verify(req.Password, e.dummyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAnonymous(ctx, EventLoginFailed, store.SeverityMedium, map[string]string{"reason": "unknown_identifier"})
		return nil, ErrInvalidCredentials
	}

	var result *LoginResult
	err = e.withUser(ctx, user.UserID, func(tx *userTx) error {
		// Reload under the lock so a concurrent status change is seen.
		current, err := e.lookupUser(tx.ctx, user.UserID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		result, err = e.login(tx, current, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) login(tx *userTx, user UserRecord, req LoginRequest) (*LoginResult, error) {
	ctx := tx.ctx
	state, err := tx.security()
	if err != nil {
		return nil, err
	}

	if state.Lockout.IsLocked(tx.now) {
		remaining := state.Lockout.Remaining(tx.now)
		e.metricInc(MetricLoginLocked)
		tx.record(EventLoginLocked, store.SeverityMedium, "", false, map[string]string{
			"remaining_minutes": strconv.Itoa(state.Lockout.RemainingMinutes(tx.now)),
		})
		return nil, &LockedError{Remaining: remaining}
	}

	ok, verr := e.hasher.Verify(req.Password, user.PasswordHash)
	if verr != nil {
		e.log.WithError(verr).WithField("user_id", user.UserID).Warn("authgate: password hash verification failed")
	}
	if verr != nil || !ok {
		locked := state.Lockout.RecordFailure(tx.now, e.lockoutRules)
		tx.markDirty()
		tx.attempt(false)
		e.metricInc(MetricLoginFailure)
		tx.record(EventLoginFailed, store.SeverityMedium, "", false, map[string]string{
			"failed_attempts": strconv.Itoa(state.Lockout.FailedAttempts),
		})
		if locked {
			e.metricInc(MetricAccountLocked)
			tx.record(EventAccountLocked, store.SeverityHigh, "", false, map[string]string{
				"locked_minutes": strconv.Itoa(state.Lockout.RemainingMinutes(tx.now)),
			})
		}
		return nil, ErrInvalidCredentials
	}

	e.scheduleRehash(tx, user, req.Password)

	if user.Status != AccountActive {
		e.metricInc(MetricLoginBlocked)
		tx.record(EventLoginBlocked, store.SeverityMedium, "", false, map[string]string{"status": string(user.Status)})
		return nil, ErrAccountNotActive
	}

	assessment, err := e.assess(tx)
	if err != nil {
		return nil, err
	}
	if assessment.Action != risk.ActionAllow {
		e.metricInc(MetricRiskElevated)
		tx.record(EventSuspiciousActivity, severityForLevel(assessment.Level), "", !assessment.Blocked(), riskMeta(assessment))
	}
	if assessment.Blocked() {
		e.metricInc(MetricLoginBlocked)
		return nil, ErrDeviceVerificationRequired
	}

	known, trusted, err := e.devices.Status(ctx, user.UserID, tx.req.DeviceID)
	if err != nil {
		return nil, err
	}
	decision, err := e.gate.RequirementFor(ctx, otp.RequirementInput{
		Operation: policy.OperationLogin,
		MFA:       state.OTP.MFA,
		Device:    policy.Device{Known: known, Trusted: trusted},
		RiskLevel: assessment.Level,
	})
	if err != nil {
		return nil, err
	}

	if decision.Required && !e.gate.IsSatisfied(state.OTP, policy.OperationLogin, tx.now) {
		if strings.TrimSpace(req.OTPCode) == "" {
			return e.pendingOTP(tx, user, state, decision, req.OTPMethod, assessment)
		}
		if needsAuthenticatorChallenge(state.OTP, req.OTPMethod) {
			if _, err := e.issueChallenge(tx, user, state, policy.OperationLogin, otp.MethodTOTP); err != nil {
				return nil, err
			}
		}
		if err := e.verifyChallenge(tx, state, policy.OperationLogin, req.OTPCode); err != nil {
			return nil, err
		}
	}

	return e.completeLogin(tx, user, state, assessment)
}

// needsAuthenticatorChallenge reports whether a submitted login code should
// be checked against a fresh TOTP challenge. Authenticator codes need no
// delivery, so a TOTP user may submit one without requesting a challenge
// first, whatever challenge another operation left behind. A live or cleared
// login challenge is kept so its method and terminal outcome still apply.
func needsAuthenticatorChallenge(state otp.State, method otp.Method) bool {
	if !state.TOTP.Enabled || (method != "" && method != otp.MethodTOTP) {
		return false
	}
	c := state.Challenge
	return c == nil || c.Verified || c.Purpose != policy.OperationLogin
}

// pendingOTP answers a login that needs an OTP, optionally issuing a
// challenge for the requested method. With no method the user can complete
// the login is refused with ErrOTPMethodUnavailable.
func (e *Engine) pendingOTP(tx *userTx, user UserRecord, state *store.SecurityState, decision policy.Decision, method otp.Method, assessment risk.Assessment) (*LoginResult, error) {
	available := e.availableMethods(user, state.OTP)
	if len(available) == 0 {
		e.metricInc(MetricLoginBlocked)
		tx.record(EventLoginBlocked, store.SeverityMedium, "", false, map[string]string{
			"reason":  "no_otp_method",
			"reasons": strings.Join(decision.Reasons, ","),
		})
		return nil, ErrOTPMethodUnavailable
	}
	result := &LoginResult{
		Outcome:          OutcomeOTPRequired,
		UserID:           user.UserID,
		Reasons:          decision.Reasons,
		AvailableMethods: available,
		Risk:             assessment,
	}
	e.metricInc(MetricOTPRequired)
	tx.record(EventOTPRequired, store.SeverityLow, "", false, map[string]string{
		"purpose": policy.OperationLogin,
		"reasons": strings.Join(decision.Reasons, ","),
	})

	if method != "" {
		challenge, err := e.issueChallenge(tx, user, state, policy.OperationLogin, method)
		if err != nil {
			return nil, err
		}
		result.Challenge = challenge
	}
	return result, nil
}

func (e *Engine) completeLogin(tx *userTx, user UserRecord, state *store.SecurityState, assessment risk.Assessment) (*LoginResult, error) {
	ctx := tx.ctx
	state.Lockout.RecordSuccess()
	tx.markDirty()

	dev, created, err := e.devices.Register(ctx, user.UserID, device.Seen{
		ID:      tx.req.DeviceID,
		Info:    device.Describe(tx.req.UserAgent),
		IP:      tx.req.IP,
		Country: tx.req.Country,
	})
	if err != nil {
		return nil, err
	}
	if created {
		tx.record(EventDeviceRegistered, store.SeverityLow, "", true, map[string]string{
			"type":    dev.Type,
			"os":      dev.OS,
			"browser": dev.Browser,
		})
	}

	sess, evicted, err := e.sessions.Create(ctx, user.UserID, session.Meta{
		DeviceID:  dev.ID,
		IP:        tx.req.IP,
		UserAgent: tx.req.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	for _, old := range evicted {
		if _, err := e.credentials.RevokeSession(ctx, user.UserID, old.ID, ReasonSessionLimitExceeded); err != nil {
			return nil, err
		}
		e.metricInc(MetricSessionEvicted)
		tx.record(EventSessionEvicted, store.SeverityLow, old.ID, true, map[string]string{"reason": ReasonSessionLimitExceeded})
	}

	issued, err := e.credentials.Issue(ctx, credential.Subject{UserID: user.UserID, Email: user.Email}, dev.ID, sess.ID)
	if err != nil {
		return nil, err
	}
	for _, set := range issued.Evicted {
		ended, err := e.sessions.Deactivate(ctx, user.UserID, set.SessionID, ReasonSessionLimitExceeded)
		if err != nil {
			return nil, err
		}
		if !ended {
			continue
		}
		e.metricInc(MetricSessionEvicted)
		tx.record(EventSessionEvicted, store.SeverityLow, set.SessionID, true, map[string]string{"reason": ReasonSessionLimitExceeded})
	}

	tx.attempt(true)
	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	tx.record(EventLoginSuccess, store.SeverityLow, sess.ID, true, map[string]string{"risk_score": strconv.Itoa(assessment.Score)})

	return &LoginResult{
		Outcome:   OutcomeAuthenticated,
		UserID:    user.UserID,
		SessionID: sess.ID,
		DeviceID:  dev.ID,
		Risk:      assessment,
		Tokens: &Tokens{
			AccessToken:   issued.AccessToken,
			RefreshToken:  issued.RefreshToken,
			IDToken:       issued.IDToken,
			AccessExpiry:  issued.AccessExpiry,
			RefreshExpiry: issued.RefreshExpiry,
		},
	}, nil
}

func (e *Engine) availableMethods(user UserRecord, state otp.State) []otp.Method {
	canDeliver := e.sender != nil
	return otp.AvailableMethods(state, canDeliver && user.Email != "", canDeliver && user.Phone != "")
}

func severityForLevel(level string) store.Severity {
	switch level {
	case risk.LevelCritical:
		return store.SeverityCritical
	case risk.LevelHigh:
		return store.SeverityHigh
	case risk.LevelMedium:
		return store.SeverityMedium
	default:
		return store.SeverityLow
	}
}

func riskMeta(a risk.Assessment) map[string]string {
	return map[string]string{
		"score":   strconv.Itoa(a.Score),
		"level":   a.Level,
		"action":  string(a.Action),
		"reasons": strings.Join(a.Reasons, ","),
	}
}

// scheduleRehash upgrades an outdated password hash after the lock is
// released. Failures are logged and never affect the login.
func (e *Engine) scheduleRehash(tx *userTx, user UserRecord, password string) {
	updater, ok := e.users.(PasswordHashUpdater)
	if !ok {
		return
	}
	checker, ok := e.hasher.(upgradeChecker)
	if !ok {
		return
	}
	if outdated, err := checker.NeedsUpgrade(user.PasswordHash); err != nil || !outdated {
		return
	}
	ctx := context.WithoutCancel(tx.ctx)
	tx.afterUnlock(func() {
		hash, err := e.hasher.Hash(password)
		if err == nil {
			err = updater.UpdatePasswordHash(ctx, user.UserID, hash)
		}
		if err != nil {
			e.log.WithError(err).WithField("user_id", user.UserID).Warn("authgate: password rehash failed")
		}
	})
}
