package authgate

import (
	"context"
	"errors"

	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/store"
)

// Refresh issues a new access token for a valid refresh token without
// rotating the refresh token. The device embedded in the token, and the
// request's device when the context carries one, must match the stored
// binding; otherwise Refresh returns ErrTokenMismatch and appends a
// device_mismatch event. The set's session is touched, and an expired or
// ended session revokes the set.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.credentials.Inspect(jwt.KindRefresh, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}
	user, err := e.lookupUser(ctx, claims.UID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if user.Status != AccountActive {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrAccountNotActive
	}

	var out *RefreshResult
	err = e.withUser(ctx, user.UserID, func(tx *userTx) error {
		state, err := tx.security()
		if err != nil {
			return err
		}
		if state.Lockout.IsLocked(tx.now) {
			return &LockedError{Remaining: state.Lockout.Remaining(tx.now)}
		}

		refreshed, err := e.credentials.Refresh(tx.ctx, refreshToken, tx.req.boundDeviceID())
		if errors.Is(err, ErrTokenMismatch) {
			e.metricInc(MetricDeviceMismatch)
			tx.record(EventDeviceMismatch, store.SeverityHigh, refreshed.SessionID, false, map[string]string{
				"token":        "refresh",
				"bound_device": refreshed.DeviceID,
			})
			return err
		}
		if err != nil {
			return err
		}

		if refreshed.SessionID != "" {
			if _, err := e.sessions.Touch(tx.ctx, user.UserID, refreshed.SessionID); err != nil {
				return e.sessionEnded(tx, refreshed.SetID, refreshed.SessionID, err)
			}
		}

		tx.record(EventTokenRefreshed, store.SeverityLow, refreshed.SessionID, true, nil)
		out = &RefreshResult{
			UserID:       refreshed.UserID,
			SessionID:    refreshed.SessionID,
			DeviceID:     refreshed.DeviceID,
			AccessToken:  refreshed.AccessToken,
			AccessExpiry: refreshed.AccessExpiry,
		}
		return nil
	})
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}
	e.metricInc(MetricRefreshSuccess)
	return out, nil
}

// sessionEnded handles a failed session touch for a credential set: the set
// is revoked and the caller must log in again. Store failures pass through.
func (e *Engine) sessionEnded(tx *userTx, setID, sessionID string, touchErr error) error {
	switch {
	case errors.Is(touchErr, session.ErrSessionExpired):
		if _, err := e.credentials.RevokeSet(tx.ctx, tx.userID, setID, ReasonSessionExpired); err != nil {
			return err
		}
		e.metricInc(MetricSessionExpired)
		tx.record(EventSessionExpired, store.SeverityLow, sessionID, false, nil)
		return ErrSessionExpired
	case errors.Is(touchErr, session.ErrSessionNotFound), errors.Is(touchErr, session.ErrSessionInactive):
		if _, err := e.credentials.RevokeSet(tx.ctx, tx.userID, setID, ReasonSessionExpired); err != nil {
			return err
		}
		return ErrTokenRevoked
	default:
		return touchErr
	}
}
