// Package redisstore is a Redis-backed store.Store.
//
// # Layout
//
// Each user collection is one hash, field = record id, value = JSON:
//
//	<prefix>:{<userID>}:cred
//	<prefix>:{<userID>}:sess
//	<prefix>:{<userID>}:dev
//	<prefix>:{<userID>}:evt
//	<prefix>:{<userID>}:hist
//	<prefix>:{<userID>}:sec      (string, security state JSON)
//
// The braces form a cluster hash tag so every key of a user lands on one slot.
//
// # What this package must NOT do
//
//   - Leak redis.Nil or client errors. Absence maps to store.ErrNotFound,
//     everything else wraps store.ErrUnavailable.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authgate/store"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "ag"

// Store implements store.Store on a redis.UniversalClient.
type Store struct {
	client redis.UniversalClient
	prefix string

	credentials *hashCollection[store.Credential]
	sessions    *hashCollection[store.Session]
	devices     *hashCollection[store.Device]
	events      *hashCollection[store.Event]
	history     *hashCollection[store.LoginAttempt]
	security    *securityStore
}

// New wraps client. An empty prefix selects DefaultPrefix.
func New(client redis.UniversalClient, prefix string) (*Store, error) {
	if client == nil {
		return nil, errors.New("redisstore: nil client")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	k := keyspace(prefix)
	return &Store{
		client:      client,
		prefix:      prefix,
		credentials: &hashCollection[store.Credential]{client: client, key: k.of("cred")},
		sessions:    &hashCollection[store.Session]{client: client, key: k.of("sess")},
		devices:     &hashCollection[store.Device]{client: client, key: k.of("dev")},
		events:      &hashCollection[store.Event]{client: client, key: k.of("evt")},
		history:     &hashCollection[store.LoginAttempt]{client: client, key: k.of("hist")},
		security:    &securityStore{client: client, key: k.of("sec")},
	}, nil
}

func (s *Store) Credentials() store.Collection[store.Credential] { return s.credentials }
func (s *Store) Sessions() store.Collection[store.Session]       { return s.sessions }
func (s *Store) Devices() store.Collection[store.Device]         { return s.devices }
func (s *Store) Events() store.Collection[store.Event]           { return s.events }
func (s *Store) History() store.Collection[store.LoginAttempt]   { return s.history }
func (s *Store) Security() store.SecurityStore                   { return s.security }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

type keyspace string

func (k keyspace) of(suffix string) func(userID string) string {
	return func(userID string) string {
		return string(k) + ":{" + userID + "}:" + suffix
	}
}

type hashCollection[T store.Record] struct {
	client redis.UniversalClient
	key    func(userID string) string
}

func (c *hashCollection[T]) List(ctx context.Context, userID string) ([]T, error) {
	raw, err := c.client.HGetAll(ctx, c.key(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]T, 0, len(raw))
	for _, v := range raw {
		var rec T
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *hashCollection[T]) Get(ctx context.Context, userID, id string) (T, error) {
	var rec T
	raw, err := c.client.HGet(ctx, c.key(userID), id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return rec, store.ErrNotFound
		}
		return rec, unavailable(err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, unavailable(err)
	}
	return rec, nil
}

func (c *hashCollection[T]) Put(ctx context.Context, userID string, records ...T) error {
	if len(records) == 0 {
		return nil
	}
	values := make([]interface{}, 0, 2*len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return unavailable(err)
		}
		values = append(values, r.RecordID(), data)
	}
	if err := c.client.HSet(ctx, c.key(userID), values...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (c *hashCollection[T]) Delete(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.HDel(ctx, c.key(userID), ids...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

type securityStore struct {
	client redis.UniversalClient
	key    func(userID string) string
}

func (s *securityStore) Get(ctx context.Context, userID string) (store.SecurityState, error) {
	var state store.SecurityState
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state, nil
		}
		return state, unavailable(err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, unavailable(err)
	}
	return state, nil
}

func (s *securityStore) Put(ctx context.Context, userID string, state store.SecurityState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return unavailable(err)
	}
	if err := s.client.Set(ctx, s.key(userID), data, 0).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
