package authgate

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authgate/store"
)

// Security event names. Each is stored on the user record and mirrored to
// the audit sink.
const (
	EventLoginSuccess           = "login_success"
	EventLoginFailed            = "login_failed"
	EventLoginLocked            = "login_locked"
	EventLoginBlocked           = "login_blocked"
	EventAccountLocked          = "account_locked"
	EventSuspiciousActivity     = "suspicious_activity"
	EventOTPRequired            = "otp_required"
	EventOTPIssued              = "otp_issued"
	EventOTPVerified            = "otp_verified"
	EventOTPFailed              = "otp_failed"
	EventOTPDeliveryFailed      = "otp_delivery_failed"
	EventSessionCreated         = "session_created"
	EventSessionEvicted         = "session_evicted"
	EventSessionExpired         = "session_expired"
	EventLogout                 = "logout"
	EventLogoutAll              = "logout_all"
	EventTokenRefreshed         = "token_refreshed"
	EventDeviceMismatch         = "device_mismatch"
	EventDeviceRegistered       = "device_registered"
	EventDeviceTrusted          = "device_trusted"
	EventDeviceUntrusted        = "device_untrusted"
	EventDeviceRemoved          = "device_removed"
	EventCredentialsRevoked     = "credentials_revoked"
	EventAccountStatusChanged   = "account_status_changed"
	EventMFAUpdated             = "mfa_updated"
	EventTOTPSetupStarted       = "totp_setup_started"
	EventTOTPEnabled            = "totp_enabled"
	EventTOTPDisabled           = "totp_disabled"
	EventBackupCodesRegenerated = "backup_codes_regenerated"
)

// Revocation and end reasons written by the engine.
const (
	ReasonSessionLimitExceeded = "session_limit_exceeded"
	ReasonLogout               = "logout"
	ReasonLogoutAll            = "logout_all"
	ReasonRevokeAll            = "revoke_all"
	ReasonDeviceRemoved        = "device_removed"
	ReasonAccountStatus        = "account_status"
	ReasonSessionExpired       = "session_expired"
)

// userTx buffers the side effects of one locked operation on a user.
type userTx struct {
	e      *Engine
	ctx    context.Context
	userID string
	req    requestInfo
	now    time.Time

	state   *store.SecurityState
	dirty   bool
	events  []store.Event
	audit   []AuditEvent
	history []store.LoginAttempt
	after   []func()
}

// security loads the security state once per transaction.
func (tx *userTx) security() (*store.SecurityState, error) {
	if tx.state != nil {
		return tx.state, nil
	}
	st, err := tx.e.store.Security().Get(tx.ctx, tx.userID)
	if err != nil {
		return nil, err
	}
	tx.state = &st
	return tx.state, nil
}

func (tx *userTx) markDirty() {
	tx.dirty = true
}

// record buffers a security event and its audit mirror.
func (tx *userTx) record(name string, severity store.Severity, sessionID string, success bool, meta map[string]string) {
	ev := store.Event{
		ID:       newOrderedID(),
		Name:     name,
		Severity: severity,
		At:       tx.now,
		DeviceID: tx.req.DeviceID,
		IP:       tx.req.IP,
	}
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			ev.Metadata = raw
		}
	}
	tx.events = append(tx.events, ev)
	tx.audit = append(tx.audit, AuditEvent{
		ID:        ev.ID,
		Timestamp: tx.now.UTC(),
		EventType: name,
		Severity:  string(severity),
		UserID:    tx.userID,
		SessionID: sessionID,
		DeviceID:  tx.req.DeviceID,
		IP:        tx.req.IP,
		Success:   success,
		Metadata:  meta,
	})
}

// attempt buffers one login history entry.
func (tx *userTx) attempt(success bool) {
	tx.history = append(tx.history, store.LoginAttempt{
		ID:       newOrderedID(),
		At:       tx.now,
		Success:  success,
		IP:       tx.req.IP,
		Country:  tx.req.Country,
		DeviceID: tx.req.DeviceID,
	})
}

// afterUnlock registers work that must run without the user lock held, such
// as code delivery. It only runs when the flush succeeded.
func (tx *userTx) afterUnlock(fn func()) {
	tx.after = append(tx.after, fn)
}

func (tx *userTx) loginHistory() ([]store.LoginAttempt, error) {
	return tx.e.store.History().List(tx.ctx, tx.userID)
}

func (tx *userTx) flush() error {
	var errs []error
	if tx.dirty && tx.state != nil {
		tx.state.UpdatedAt = tx.now
		if err := tx.e.store.Security().Put(tx.ctx, tx.userID, *tx.state); err != nil {
			errs = append(errs, err)
		}
	}
	if len(tx.events) > 0 {
		if err := tx.flushEvents(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(tx.history) > 0 {
		if err := tx.flushHistory(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// flushEvents appends the buffered events and trims the collection to the
// configured cap, dropping the oldest first.
func (tx *userTx) flushEvents() error {
	col := tx.e.store.Events()
	if err := col.Put(tx.ctx, tx.userID, tx.events...); err != nil {
		return err
	}
	all, err := col.List(tx.ctx, tx.userID)
	if err != nil {
		return err
	}
	limit := tx.e.config.Events.MaxPerUser
	if len(all) <= limit {
		return nil
	}
	sortEventsOldestFirst(all)
	drop := make([]string, 0, len(all)-limit)
	for _, ev := range all[:len(all)-limit] {
		drop = append(drop, ev.ID)
	}
	return col.Delete(tx.ctx, tx.userID, drop...)
}

// flushHistory appends the buffered attempts, then drops entries past the
// retention window and beyond the cap.
func (tx *userTx) flushHistory() error {
	col := tx.e.store.History()
	if err := col.Put(tx.ctx, tx.userID, tx.history...); err != nil {
		return err
	}
	all, err := col.List(tx.ctx, tx.userID)
	if err != nil {
		return err
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].At.Equal(all[j].At) {
			return all[i].At.Before(all[j].At)
		}
		return all[i].ID < all[j].ID
	})

	cutoff := tx.now.Add(-tx.e.config.Risk.HistoryRetention)
	var drop []string
	kept := len(all)
	for _, a := range all {
		if a.At.Before(cutoff) || kept > tx.e.config.Risk.HistoryLimit {
			drop = append(drop, a.ID)
			kept--
		}
	}
	return col.Delete(tx.ctx, tx.userID, drop...)
}

func sortEventsOldestFirst(events []store.Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].At.Equal(events[j].At) {
			return events[i].At.Before(events[j].At)
		}
		return events[i].ID < events[j].ID
	})
}

// emitAudit hands buffered events to the async dispatcher. Sink failures
// never reach the caller.
func (e *Engine) emitAudit(ctx context.Context, events []AuditEvent) {
	if e == nil || e.audit == nil || len(events) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		e.audit.Emit(ctx, ev)
	}
}

// emitAnonymous mirrors an event that has no user record to attach to.
func (e *Engine) emitAnonymous(ctx context.Context, name string, severity store.Severity, meta map[string]string) {
	req := requestFromContext(ctx)
	e.emitAudit(ctx, []AuditEvent{{
		ID:        newOrderedID(),
		Timestamp: e.now().UTC(),
		EventType: name,
		Severity:  string(severity),
		DeviceID:  req.DeviceID,
		IP:        req.IP,
		Metadata:  meta,
	}})
}

// SecurityEvents returns the user's stored security events, newest first.
func (e *Engine) SecurityEvents(ctx context.Context, userID string) ([]store.Event, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	events, err := e.store.Events().List(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	sortEventsOldestFirst(events)
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// newOrderedID returns a time-ordered UUIDv7 so ids break timestamp ties in
// insertion order.
func newOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
