// Package store defines the keyed-record persistence contract used by the
// authentication core and the records it persists.
//
// Every record belongs to one user. The core serializes all writes for a user
// (see internal/keylock), so backends only need per-call atomicity, not
// multi-call transactions.
//
// # Backends
//
//   - store/memory: process-local maps, for tests and single-node setups.
//   - store/redisstore: one Redis hash per user and collection.
//   - store/postgres: one table per collection keyed by (user_id, id).
//
// # What this package must NOT do
//
//   - Make authentication decisions.
//   - Expose backend specific errors. Backends wrap failures with
//     [ErrUnavailable] and report absence with [ErrNotFound].
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a keyed record does not exist.
	ErrNotFound = errors.New("store: record not found")
	// ErrUnavailable wraps every backend failure (timeouts, connectivity, decode errors).
	ErrUnavailable = errors.New("store: unavailable")
)

// Record is implemented by every collection element.
type Record interface {
	RecordID() string
}

// Collection is a per-user set of records keyed by RecordID.
type Collection[T Record] interface {
	// List returns every record of the user in unspecified order.
	List(ctx context.Context, userID string) ([]T, error)
	// Get returns ErrNotFound when the record is absent.
	Get(ctx context.Context, userID, id string) (T, error)
	// Put inserts or replaces records.
	Put(ctx context.Context, userID string, records ...T) error
	// Delete removes records; missing ids are ignored.
	Delete(ctx context.Context, userID string, ids ...string) error
}

// SecurityStore holds the single per-user security state document.
type SecurityStore interface {
	// Get returns a zero SecurityState when none was stored yet.
	Get(ctx context.Context, userID string) (SecurityState, error)
	Put(ctx context.Context, userID string, state SecurityState) error
}

// Store groups the collections of the user security record.
type Store interface {
	Credentials() Collection[Credential]
	Sessions() Collection[Session]
	Devices() Collection[Device]
	Events() Collection[Event]
	History() Collection[LoginAttempt]
	Security() SecurityStore

	Ping(ctx context.Context) error
	Close() error
}
