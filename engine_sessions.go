package authgate

import (
	"context"

	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/store"
)

// Logout accepts any token of a credential set, revokes the whole set and
// ends its session. Logging out twice is a no-op the second time.
func (e *Engine) Logout(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	claims, err := e.inspectAny(token)
	if err != nil {
		return err
	}
	return e.withUser(ctx, claims.UID, func(tx *userTx) error {
		rec, err := e.credentials.RevokeToken(tx.ctx, token, ReasonLogout)
		if err != nil {
			return err
		}
		if rec.SessionID != "" {
			if _, err := e.sessions.Deactivate(tx.ctx, tx.userID, rec.SessionID, ReasonLogout); err != nil {
				return err
			}
		}
		e.metricInc(MetricLogout)
		tx.record(EventLogout, store.SeverityLow, rec.SessionID, true, nil)
		return nil
	})
}

// LogoutAll ends every session and revokes every credential of the user.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.withUser(ctx, userID, func(tx *userTx) error {
		if err := e.revokeEverything(tx, ReasonLogoutAll); err != nil {
			return err
		}
		e.metricInc(MetricLogoutAll)
		tx.record(EventLogoutAll, store.SeverityMedium, "", true, nil)
		return nil
	})
}

// RevokeAll revokes every credential and ends every session, for example
// after a password change. reason is stored on each revoked record.
func (e *Engine) RevokeAll(ctx context.Context, userID, reason string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if reason == "" {
		reason = ReasonRevokeAll
	}
	return e.withUser(ctx, userID, func(tx *userTx) error {
		if err := e.revokeEverything(tx, reason); err != nil {
			return err
		}
		tx.record(EventCredentialsRevoked, store.SeverityHigh, "", true, map[string]string{"reason": reason})
		return nil
	})
}

// ListSessions returns the user's active sessions, oldest first.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]store.Session, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	sessions, err := e.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	return sessions, nil
}

// EndSession ends one session and revokes the credentials issued for it.
func (e *Engine) EndSession(ctx context.Context, userID, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return e.withUser(ctx, userID, func(tx *userTx) error {
		ended, err := e.sessions.Deactivate(tx.ctx, userID, sessionID, ReasonLogout)
		if err != nil {
			return err
		}
		if _, err := e.credentials.RevokeSession(tx.ctx, userID, sessionID, ReasonLogout); err != nil {
			return err
		}
		if ended {
			e.metricInc(MetricLogout)
			tx.record(EventLogout, store.SeverityLow, sessionID, true, nil)
		}
		return nil
	})
}

// SetAccountStatus persists the new status through the UserProvider. Leaving
// the active status revokes every credential and ends every session.
func (e *Engine) SetAccountStatus(ctx context.Context, userID string, status AccountStatus) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if !status.Valid() {
		return ErrInvalidAccountStatus
	}
	current, err := e.lookupUser(ctx, userID)
	if err != nil {
		return err
	}
	return e.withUser(ctx, current.UserID, func(tx *userTx) error {
		updated, err := e.users.UpdateAccountStatus(tx.ctx, current.UserID, status)
		if err != nil {
			return unavailable(err)
		}
		if updated.Status != AccountActive {
			if err := e.revokeEverything(tx, ReasonAccountStatus); err != nil {
				return err
			}
		}
		tx.record(EventAccountStatusChanged, store.SeverityHigh, "", true, map[string]string{
			"from": string(current.Status),
			"to":   string(updated.Status),
		})
		return nil
	})
}

// Prune hard deletes the user's expired credentials and sessions. It is
// idempotent and safe to run from an external sweep.
func (e *Engine) Prune(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	var removed int
	err := e.withUser(ctx, userID, func(tx *userTx) error {
		creds, err := e.credentials.Prune(tx.ctx, userID)
		if err != nil {
			return err
		}
		sessions, err := e.sessions.Prune(tx.ctx, userID)
		if err != nil {
			return err
		}
		removed = creds + sessions
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.log.WithField("user_id", userID).WithField("removed", removed).Debug("authgate: pruned expired records")
	}
	return removed, nil
}

func (e *Engine) revokeEverything(tx *userTx, reason string) error {
	if _, err := e.credentials.RevokeAll(tx.ctx, tx.userID, reason); err != nil {
		return err
	}
	_, err := e.sessions.DeactivateAll(tx.ctx, tx.userID, reason)
	return err
}

// inspectAny verifies token against each key domain in turn.
func (e *Engine) inspectAny(token string) (*jwt.Claims, error) {
	var firstErr error
	for _, kind := range []jwt.Kind{jwt.KindAccess, jwt.KindRefresh, jwt.KindID} {
		claims, err := e.credentials.Inspect(kind, token)
		if err == nil {
			return claims, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
