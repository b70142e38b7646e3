package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authgate/store"
)

var (
	// ErrSessionNotFound is returned when the session id is unknown.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionExpired is returned by Touch once ExpiresAt has passed.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInactive is returned by Touch for deactivated sessions.
	ErrSessionInactive = errors.New("session: inactive")
)

// End reasons written by this package.
const (
	ReasonSessionLimitExceeded = "session_limit_exceeded"
	ReasonExpired              = "expired"
)

// Defaults.
const (
	DefaultMaxActive = 3
	DefaultTimeout   = 120 * time.Minute
)

// Meta describes the client opening a session.
type Meta struct {
	DeviceID  string
	IP        string
	UserAgent string
}

// Manager enforces the session cap and activity timeout.
type Manager struct {
	records   store.Collection[store.Session]
	maxActive int
	timeout   time.Duration
	now       func() time.Time
}

// NewManager returns a Manager. Non-positive limits select the defaults.
func NewManager(records store.Collection[store.Session], maxActive int, timeout time.Duration, now func() time.Time) *Manager {
	if maxActive <= 0 {
		maxActive = DefaultMaxActive
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{records: records, maxActive: maxActive, timeout: timeout, now: now}
}

// Timeout returns the idle timeout.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Create opens a session and returns it with the sessions evicted to make
// room.
func (m *Manager) Create(ctx context.Context, userID string, meta Meta) (store.Session, []store.Session, error) {
	now := m.now()
	live, err := m.prune(ctx, userID, now)
	if err != nil {
		return store.Session{}, nil, err
	}

	active := activeOldestFirst(live)
	var evicted []store.Session
	for len(active) >= m.maxActive {
		s := active[0]
		active = active[1:]
		end(&s, ReasonSessionLimitExceeded, now)
		evicted = append(evicted, s)
	}

	created := store.Session{
		ID:           uuid.NewString(),
		DeviceID:     meta.DeviceID,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.timeout),
		Active:       true,
	}
	if err := m.records.Put(ctx, userID, append(evicted, created)...); err != nil {
		return store.Session{}, nil, err
	}
	return created, evicted, nil
}

// Touch records activity on an active session and slides its expiry.
func (m *Manager) Touch(ctx context.Context, userID, id string) (store.Session, error) {
	s, err := m.records.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Session{}, ErrSessionNotFound
		}
		return store.Session{}, err
	}

	now := m.now()
	if !now.Before(s.ExpiresAt) {
		if end(&s, ReasonExpired, now) {
			if err := m.records.Put(ctx, userID, s); err != nil {
				return store.Session{}, err
			}
		}
		return s, ErrSessionExpired
	}
	if !s.Active {
		return s, ErrSessionInactive
	}

	s.LastActivity = now
	s.ExpiresAt = now.Add(m.timeout)
	if err := m.records.Put(ctx, userID, s); err != nil {
		return store.Session{}, err
	}
	return s, nil
}

// Deactivate ends one session. Ending an ended or unknown session is a no-op.
func (m *Manager) Deactivate(ctx context.Context, userID, id, reason string) (bool, error) {
	s, err := m.records.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !end(&s, reason, m.now()) {
		return false, nil
	}
	return true, m.records.Put(ctx, userID, s)
}

// DeactivateAll ends every active session of the user.
func (m *Manager) DeactivateAll(ctx context.Context, userID, reason string) (int, error) {
	return m.deactivateWhere(ctx, userID, reason, func(store.Session) bool { return true })
}

// DeactivateDevice ends every active session opened from deviceID.
func (m *Manager) DeactivateDevice(ctx context.Context, userID, deviceID, reason string) (int, error) {
	return m.deactivateWhere(ctx, userID, reason, func(s store.Session) bool { return s.DeviceID == deviceID })
}

// ListActive returns active, unexpired sessions oldest first.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]store.Session, error) {
	all, err := m.records.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	var out []store.Session
	for _, s := range activeOldestFirst(all) {
		if now.Before(s.ExpiresAt) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Prune hard deletes expired sessions and returns how many were removed.
func (m *Manager) Prune(ctx context.Context, userID string) (int, error) {
	all, err := m.records.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	live, err := m.deleteExpired(ctx, userID, all, m.now())
	if err != nil {
		return 0, err
	}
	return len(all) - len(live), nil
}

func (m *Manager) prune(ctx context.Context, userID string, now time.Time) ([]store.Session, error) {
	all, err := m.records.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.deleteExpired(ctx, userID, all, now)
}

func (m *Manager) deleteExpired(ctx context.Context, userID string, all []store.Session, now time.Time) ([]store.Session, error) {
	var expired []string
	var live []store.Session
	for _, s := range all {
		if s.ExpiresAt.Before(now) {
			expired = append(expired, s.ID)
			continue
		}
		live = append(live, s)
	}
	if err := m.records.Delete(ctx, userID, expired...); err != nil {
		return nil, err
	}
	return live, nil
}

func (m *Manager) deactivateWhere(ctx context.Context, userID, reason string, match func(store.Session) bool) (int, error) {
	all, err := m.records.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := m.now()
	var changed []store.Session
	for _, s := range all {
		if match(s) && end(&s, reason, now) {
			changed = append(changed, s)
		}
	}
	if err := m.records.Put(ctx, userID, changed...); err != nil {
		return 0, err
	}
	return len(changed), nil
}

func activeOldestFirst(all []store.Session) []store.Session {
	var out []store.Session
	for _, s := range all {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// end deactivates s and reports whether it changed.
func end(s *store.Session, reason string, now time.Time) bool {
	if !s.Active {
		return false
	}
	at := now
	s.Active = false
	s.EndedReason = reason
	s.EndedAt = &at
	return true
}
