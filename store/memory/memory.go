// Package memory is a process-local store.Store. It is safe for concurrent
// use and returns copies, so callers never alias stored records.
package memory

import (
	"context"
	"sync"

	"github.com/MrEthical07/authgate/store"
)

// Store keeps every collection in maps guarded by one RWMutex per collection.
type Store struct {
	credentials *collection[store.Credential]
	sessions    *collection[store.Session]
	devices     *collection[store.Device]
	events      *collection[store.Event]
	history     *collection[store.LoginAttempt]
	security    *securityStore

	failure *failure
}

type failure struct {
	mu  sync.RWMutex
	err error
}

func (f *failure) get() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

// New returns an empty store.
func New() *Store {
	f := &failure{}
	return &Store{
		credentials: newCollection[store.Credential](f),
		sessions:    newCollection[store.Session](f),
		devices:     newCollection[store.Device](f),
		events:      newCollection[store.Event](f),
		history:     newCollection[store.LoginAttempt](f),
		security:    &securityStore{states: make(map[string]store.SecurityState), fail: f},
		failure:     f,
	}
}

// SetFailure makes every subsequent call fail with err wrapped in
// store.ErrUnavailable. Pass nil to recover.
func (s *Store) SetFailure(err error) {
	s.failure.mu.Lock()
	s.failure.err = err
	s.failure.mu.Unlock()
}

func (s *Store) Credentials() store.Collection[store.Credential] { return s.credentials }
func (s *Store) Sessions() store.Collection[store.Session]       { return s.sessions }
func (s *Store) Devices() store.Collection[store.Device]         { return s.devices }
func (s *Store) Events() store.Collection[store.Event]           { return s.events }
func (s *Store) History() store.Collection[store.LoginAttempt]   { return s.history }
func (s *Store) Security() store.SecurityStore                   { return s.security }

// Ping reports the simulated failure, if any.
func (s *Store) Ping(context.Context) error { return unavailable(s.failure) }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func unavailable(f *failure) error {
	if err := f.get(); err != nil {
		return wrap(err)
	}
	return nil
}
