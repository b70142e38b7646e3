package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/MrEthical07/authgate/store"
)

type collection[T store.Record] struct {
	mu   sync.RWMutex
	data map[string]map[string]T
	fail *failure
}

func newCollection[T store.Record](f *failure) *collection[T] {
	return &collection[T]{data: make(map[string]map[string]T), fail: f}
}

func (c *collection[T]) List(_ context.Context, userID string) ([]T, error) {
	if err := unavailable(c.fail); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	records := c.data[userID]
	out := make([]T, 0, len(records))
	for _, r := range records {
		cp, err := clone(r)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (c *collection[T]) Get(_ context.Context, userID, id string) (T, error) {
	var zero T
	if err := unavailable(c.fail); err != nil {
		return zero, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.data[userID][id]
	if !ok {
		return zero, store.ErrNotFound
	}
	return clone(r)
}

func (c *collection[T]) Put(_ context.Context, userID string, records ...T) error {
	if err := unavailable(c.fail); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.data[userID]
	if bucket == nil {
		bucket = make(map[string]T)
		c.data[userID] = bucket
	}
	for _, r := range records {
		cp, err := clone(r)
		if err != nil {
			return err
		}
		bucket[r.RecordID()] = cp
	}
	return nil
}

func (c *collection[T]) Delete(_ context.Context, userID string, ids ...string) error {
	if err := unavailable(c.fail); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.data[userID]
	for _, id := range ids {
		delete(bucket, id)
	}
	if len(bucket) == 0 {
		delete(c.data, userID)
	}
	return nil
}

type securityStore struct {
	mu     sync.RWMutex
	states map[string]store.SecurityState
	fail   *failure
}

func (s *securityStore) Get(_ context.Context, userID string) (store.SecurityState, error) {
	if err := unavailable(s.fail); err != nil {
		return store.SecurityState{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.states[userID])
}

func (s *securityStore) Put(_ context.Context, userID string, state store.SecurityState) error {
	if err := unavailable(s.fail); err != nil {
		return err
	}
	cp, err := clone(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.states[userID] = cp
	s.mu.Unlock()
	return nil
}

// clone deep-copies through JSON so nested pointers and slices are never shared.
func clone[T any](v T) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, wrap(err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, wrap(err)
	}
	return out, nil
}

func wrap(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
