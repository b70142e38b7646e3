package authgate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/risk"
	"github.com/MrEthical07/authgate/store"
)

// Authenticate validates an access token for one request.
//
// The token must verify, have a usable stored record and belong to an active,
// unlocked account. Its session is touched (sliding expiry); an expired or
// ended session revokes the credential set. When device binding is enforced
// and the request carries a device signal, a different device fails with
// ErrTokenMismatch. A risk score that blocks fails with
// ErrDeviceVerificationRequired.
func (e *Engine) Authenticate(ctx context.Context, token string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	res, err := e.authenticate(ctx, strings.TrimSpace(token))
	if e.metrics != nil {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, err
	}
	e.metricInc(MetricAuthenticateSuccess)
	return res, nil
}

func (e *Engine) authenticate(ctx context.Context, token string) (*AuthResult, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	claims, err := e.credentials.Inspect(jwt.KindAccess, token)
	if err != nil {
		return nil, err
	}
	user, err := e.lookupUser(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if user.Status != AccountActive {
		return nil, ErrAccountNotActive
	}

	var out *AuthResult
	err = e.withUser(ctx, user.UserID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		if state.Lockout.IsLocked(tx.now) {
			return &LockedError{Remaining: state.Lockout.Remaining(tx.now)}
		}

		rec, _, err := e.credentials.Validate(tx.ctx, token, jwt.KindAccess)
		if err != nil {
			return err
		}
		if e.config.Device.EnforceBinding && tx.req.Observed && rec.DeviceID != tx.req.DeviceID {
			e.metricInc(MetricDeviceMismatch)
			tx.record(EventDeviceMismatch, store.SeverityHigh, rec.SessionID, false, map[string]string{
				"token":        "access",
				"bound_device": rec.DeviceID,
			})
			return ErrTokenMismatch
		}

		if rec.SessionID != "" {
			if _, err := e.sessions.Touch(tx.ctx, user.UserID, rec.SessionID); err != nil {
				return e.sessionEnded(tx, rec.SetID, rec.SessionID, err)
			}
		}

		assessment, err := e.assess(tx)
		if err != nil {
			return err
		}
		if assessment.Blocked() {
			e.metricInc(MetricRiskElevated)
			tx.record(EventSuspiciousActivity, severityForLevel(assessment.Level), rec.SessionID, false, riskMeta(assessment))
			return ErrDeviceVerificationRequired
		}

		out = &AuthResult{
			User:      user,
			Token:     token,
			TokenID:   rec.ID,
			SessionID: rec.SessionID,
			DeviceID:  rec.DeviceID,
			Risk:      assessment,
		}
		dev, err := e.devices.Get(tx.ctx, user.UserID, rec.DeviceID)
		switch {
		case err == nil:
			out.Device = &dev
		case !errors.Is(err, ErrDeviceNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// assess scores the current request against the user's login history.
func (e *Engine) assess(tx *userTx) (risk.Assessment, error) {
	history, err := tx.loginHistory()
	if err != nil {
		return risk.Assessment{}, err
	}
	return e.risk.Score(history, tx.req.riskSignal(), tx.now), nil
}

// Authorize checks the authenticated user's role against resource and action.
// Without configured roles every request is denied.
func (e *Engine) Authorize(_ context.Context, auth *AuthResult, resource, action string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if auth == nil {
		return ErrTokenInvalid
	}
	if e.roles == nil || !e.roles.Allowed(auth.User.Role, resource, action) {
		return ErrForbidden
	}
	return nil
}

// RolePermissions lists what role is granted. A root role reports "*".
func (e *Engine) RolePermissions(role string) []string {
	if e == nil || e.roles == nil {
		return nil
	}
	return e.roles.Permissions(role)
}
