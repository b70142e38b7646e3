// Package postgres is a PostgreSQL-backed store.Store using the pgx stdlib
// driver.
//
// Every collection is its own table keyed by (user_id, id) with a foreign key
// to authgate_security, the per-user parent row. Record bodies are JSONB.
// Run [Migrate] before [Open].
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MrEthical07/authgate/store"
)

// Store implements store.Store on *sql.DB.
type Store struct {
	db *sql.DB

	credentials *table[store.Credential]
	sessions    *table[store.Session]
	devices     *table[store.Device]
	events      *table[store.Event]
	history     *table[store.LoginAttempt]
	security    *securityTable
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an existing handle. Store.Close closes it.
func New(db *sql.DB) *Store {
	return &Store{
		db:          db,
		credentials: &table[store.Credential]{db: db, name: "authgate_credentials"},
		sessions:    &table[store.Session]{db: db, name: "authgate_sessions"},
		devices:     &table[store.Device]{db: db, name: "authgate_devices"},
		events:      &table[store.Event]{db: db, name: "authgate_events"},
		history:     &table[store.LoginAttempt]{db: db, name: "authgate_login_history"},
		security:    &securityTable{db: db},
	}
}

func (s *Store) Credentials() store.Collection[store.Credential] { return s.credentials }
func (s *Store) Sessions() store.Collection[store.Session]       { return s.sessions }
func (s *Store) Devices() store.Collection[store.Device]         { return s.devices }
func (s *Store) Events() store.Collection[store.Event]           { return s.events }
func (s *Store) History() store.Collection[store.LoginAttempt]   { return s.history }
func (s *Store) Security() store.SecurityStore                   { return s.security }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const ensureParentSQL = `INSERT INTO authgate_security (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`

type table[T store.Record] struct {
	db   *sql.DB
	name string
}

func (t *table[T]) List(ctx context.Context, userID string) ([]T, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT body FROM `+t.name+` WHERE user_id = $1`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, unavailable(err)
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (t *table[T]) Get(ctx context.Context, userID, id string) (T, error) {
	var rec T
	var raw []byte
	err := t.db.QueryRowContext(ctx, `SELECT body FROM `+t.name+` WHERE user_id = $1 AND id = $2`, userID, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, store.ErrNotFound
		}
		return rec, unavailable(err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, unavailable(err)
	}
	return rec, nil
}

func (t *table[T]) Put(ctx context.Context, userID string, records ...T) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, ensureParentSQL, userID); err != nil {
		return unavailable(err)
	}
	upsert := `INSERT INTO ` + t.name + ` (user_id, id, body, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for _, r := range records {
		body, err := json.Marshal(r)
		if err != nil {
			return unavailable(err)
		}
		if _, err := tx.ExecContext(ctx, upsert, userID, r.RecordID(), string(body), now); err != nil {
			return unavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (t *table[T]) Delete(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.db.ExecContext(ctx, `DELETE FROM `+t.name+` WHERE user_id = $1 AND id = ANY($2)`, userID, ids); err != nil {
		return unavailable(err)
	}
	return nil
}

type securityTable struct {
	db *sql.DB
}

func (s *securityTable) Get(ctx context.Context, userID string) (store.SecurityState, error) {
	var state store.SecurityState
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM authgate_security WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, nil
		}
		return state, unavailable(err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return state, unavailable(err)
	}
	return state, nil
}

func (s *securityTable) Put(ctx context.Context, userID string, state store.SecurityState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return unavailable(err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO authgate_security (user_id, state, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`, userID, string(body), time.Now().UTC())
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
