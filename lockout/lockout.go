// Package lockout implements the consecutive-failure lockout state machine.
//
// # States
//
//	Unlocked --(Threshold consecutive failures)--> Locked(until = now + Duration)
//	Locked   --(time passes LockedUntil)--------> Unlocked
//	any      --(RecordSuccess)------------------> Unlocked, counters zeroed
//
// [State] is a plain value persisted inside the user's security record. Callers
// serialize mutations per user; this package performs no locking and no I/O.
//
// # What this package must NOT do
//
//   - Cache lock decisions across calls: [State.IsLocked] is evaluated against the
//     supplied clock every time.
//   - Reject already-issued tokens. Token status is checked by the engine.
package lockout

import "time"

// Default policy values.
const (
	DefaultThreshold = 5
	DefaultDuration  = 30 * time.Minute
)

// Policy configures the lockout transition.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultPolicy returns the 5 attempts / 30 minutes policy.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

func (p Policy) normalized() Policy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultDuration
	}
	return p
}

// State is the per-user lockout record.
//
// FailedAttempts counts failures since the last success and is kept for
// reporting. ConsecutiveFailures drives the lock transition and restarts from
// zero once a lock has been applied.
type State struct {
	FailedAttempts      int        `json:"failed_attempts"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
}

// RecordFailure registers one failed password attempt and reports whether this
// call transitioned the account into the locked state.
func (s *State) RecordFailure(now time.Time, policy Policy) bool {
	policy = policy.normalized()

	s.FailedAttempts++
	s.ConsecutiveFailures++
	at := now
	s.LastFailureAt = &at

	if s.ConsecutiveFailures < policy.Threshold {
		return false
	}

	until := now.Add(policy.Duration)
	s.LockedUntil = &until
	s.ConsecutiveFailures = 0
	return true
}

// RecordSuccess clears both counters and any lock unconditionally.
func (s *State) RecordSuccess() {
	s.FailedAttempts = 0
	s.ConsecutiveFailures = 0
	s.LockedUntil = nil
	s.LastFailureAt = nil
}

// IsLocked reports whether LockedUntil is still in the future.
func (s State) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(now)
}

// Remaining returns the time left on an active lock, or zero.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.IsLocked(now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// RemainingMinutes rounds the remaining lock time up to whole minutes.
func (s State) RemainingMinutes(now time.Time) int {
	remaining := s.Remaining(now)
	if remaining <= 0 {
		return 0
	}
	minutes := remaining / time.Minute
	if remaining%time.Minute != 0 {
		minutes++
	}
	return int(minutes)
}
