package authgate

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/credential"
	"github.com/MrEthical07/authgate/device"
	internalaudit "github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/lockout"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/permission"
	"github.com/MrEthical07/authgate/risk"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/store"
)

// Engine orchestrates login, refresh, per-request authentication and the
// account security operations. Build it with New().
//
// Every mutation of a user's security record runs under that user's lock.
// Different users proceed in parallel.
type Engine struct {
	config       Config
	store        store.Store
	users        UserProvider
	hasher       PasswordHasher
	sender       OTPSender
	locker       Locker
	log          log.FieldLogger
	now          func() time.Time
	dummyHash    string
	signer       *jwt.Manager
	credentials  *credential.Manager
	sessions     *session.Manager
	devices      *device.Registry
	risk         *risk.Engine
	gate         *otp.Gate
	roles        *permission.RoleManager
	lockoutRules lockout.Policy
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
}

// Close drains the audit dispatcher. The store is owned by the caller and
// stays open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events the dispatcher dropped because
// its buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed returns how many audit events the sink rejected.
func (e *Engine) AuditFailed() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Failed()
}

// MetricsSnapshot copies the current counters and histogram buckets.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return unavailable(e.store.Ping(ctx))
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// withUser runs fn under the user's lock. Buffered state, events and login
// history are flushed before the lock is released; audit mirroring and the
// registered after-unlock work run once it is released. A flush failure
// takes precedence over fn's error.
func (e *Engine) withUser(ctx context.Context, userID string, fn func(tx *userTx) error) error {
	if e == nil {
		return ErrEngineNotReady
	}
	unlock, err := e.locker.Lock(ctx, "user:"+userID)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return unavailable(err)
	}

	tx := &userTx{e: e, ctx: ctx, userID: userID, req: requestFromContext(ctx), now: e.now()}
	fnErr := fn(tx)
	flushErr := tx.flush()
	unlock()

	e.emitAudit(ctx, tx.audit)
	if flushErr != nil {
		e.metricInc(MetricStoreUnavailable)
		return unavailable(flushErr)
	}
	for _, f := range tx.after {
		f()
	}
	if fnErr != nil && errors.Is(fnErr, store.ErrUnavailable) {
		e.metricInc(MetricStoreUnavailable)
	}
	return fnErr
}

// lookupUser maps provider failures: ErrUserNotFound is kept, anything else
// becomes ErrStoreUnavailable.
func (e *Engine) lookupUser(ctx context.Context, userID string) (UserRecord, error) {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, unavailable(err)
	}
	return user, nil
}
