// Package credential manages the per-user collection of issued bearer
// credentials.
//
// A login issues one credential set: an access, a refresh and an identity
// token that share a SetID (the refresh record id). The number of active sets
// per user is capped; issuing beyond the cap revokes the oldest active set.
// Tokens are signed JWTs from package jwt. Only a SHA-256 hash of each token is
// persisted, and a token is usable iff its record exists, is not revoked and
// is not expired.
//
// # Concurrency
//
// Manager performs read-modify-write sequences on the user's credentials.
// Callers must serialize Issue, Validate, Refresh, Revoke* and Prune per user.
// [Manager.Inspect] is a pure signature check and needs no lock.
package credential

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/store"
)

// Revocation reasons written by this package.
const (
	ReasonSessionLimitExceeded = "session_limit_exceeded"
)

// DefaultMaxSets is the default cap on active credential sets per user.
const DefaultMaxSets = 3

// Subject identifies the user a set is issued to.
type Subject struct {
	UserID string
	Email  string
}

// Issued is the result of Issue.
type Issued struct {
	SetID         string
	AccessToken   string
	RefreshToken  string
	IDToken       string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
	// Evicted holds the refresh records of the sets revoked to stay within
	// the cap.
	Evicted []store.Credential
}

// Refreshed is the result of Refresh.
type Refreshed struct {
	UserID       string
	DeviceID     string
	SessionID    string
	SetID        string
	AccessToken  string
	AccessExpiry time.Time
}

// Manager issues, validates and revokes credentials.
type Manager struct {
	records store.Collection[store.Credential]
	signer  *jwt.Manager
	maxSets int
	now     func() time.Time
}

// NewManager returns a Manager. maxSets <= 0 selects DefaultMaxSets and a nil
// clock selects time.Now.
func NewManager(records store.Collection[store.Credential], signer *jwt.Manager, maxSets int, now func() time.Time) *Manager {
	if maxSets <= 0 {
		maxSets = DefaultMaxSets
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{records: records, signer: signer, maxSets: maxSets, now: now}
}

// Issue prunes expired records, enforces the set cap and creates a new set
// bound to deviceID.
func (m *Manager) Issue(ctx context.Context, sub Subject, deviceID, sessionID string) (Issued, error) {
	now := m.now()
	all, err := m.records.List(ctx, sub.UserID)
	if err != nil {
		return Issued{}, err
	}
	live, err := m.prune(ctx, sub.UserID, all, now)
	if err != nil {
		return Issued{}, err
	}

	var out Issued
	var writes []store.Credential

	active := activeSets(live, now)
	for len(active) >= m.maxSets {
		oldest := active[0]
		active = active[1:]
		writes = append(writes, revokeSet(live, oldest.SetID, ReasonSessionLimitExceeded, now)...)
		out.Evicted = append(out.Evicted, oldest)
	}

	setID := uuid.NewString()
	base := jwt.Claims{UID: sub.UserID, DeviceID: deviceID, SessionID: sessionID, SetID: setID}

	refresh, refreshRec, err := m.sign(jwt.KindRefresh, setID, base)
	if err != nil {
		return Issued{}, err
	}
	access, accessRec, err := m.sign(jwt.KindAccess, uuid.NewString(), base)
	if err != nil {
		return Issued{}, err
	}
	idClaims := base
	idClaims.Email = sub.Email
	idToken, idRec, err := m.sign(jwt.KindID, uuid.NewString(), idClaims)
	if err != nil {
		return Issued{}, err
	}
	writes = append(writes, refreshRec, accessRec, idRec)

	if err := m.records.Put(ctx, sub.UserID, writes...); err != nil {
		return Issued{}, err
	}

	out.SetID = setID
	out.AccessToken = access
	out.RefreshToken = refresh
	out.IDToken = idToken
	out.AccessExpiry = accessRec.ExpiresAt
	out.RefreshExpiry = refreshRec.ExpiresAt
	return out, nil
}

// Inspect verifies the signature, issuer, audience and expiry of token
// without consulting the store.
func (m *Manager) Inspect(kind jwt.Kind, token string) (*jwt.Claims, error) {
	claims, err := m.signer.Parse(kind, token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Validate checks token against its stored record and records the use.
func (m *Manager) Validate(ctx context.Context, token string, kind jwt.Kind) (store.Credential, *jwt.Claims, error) {
	rec, claims, err := m.lookup(ctx, token, kind)
	if err != nil {
		return store.Credential{}, nil, err
	}
	used := m.now()
	rec.LastUsedAt = &used
	if err := m.records.Put(ctx, claims.UID, rec); err != nil {
		return store.Credential{}, nil, err
	}
	return rec, claims, nil
}

// Refresh issues a new access token for a valid refresh token. The device
// embedded in the token and requestDeviceID, when non-empty, must both match
// the stored binding. The refresh token itself is not rotated.
func (m *Manager) Refresh(ctx context.Context, refreshToken, requestDeviceID string) (Refreshed, error) {
	rec, claims, err := m.lookup(ctx, refreshToken, jwt.KindRefresh)
	if err != nil {
		return Refreshed{}, err
	}
	if claims.DeviceID != rec.DeviceID || (requestDeviceID != "" && requestDeviceID != rec.DeviceID) {
		return Refreshed{UserID: claims.UID, DeviceID: rec.DeviceID, SessionID: rec.SessionID, SetID: rec.SetID}, ErrTokenMismatch
	}

	base := jwt.Claims{UID: claims.UID, DeviceID: rec.DeviceID, SessionID: rec.SessionID, SetID: rec.SetID}
	access, accessRec, err := m.sign(jwt.KindAccess, uuid.NewString(), base)
	if err != nil {
		return Refreshed{}, err
	}
	used := m.now()
	rec.LastUsedAt = &used
	if err := m.records.Put(ctx, claims.UID, rec, accessRec); err != nil {
		return Refreshed{}, err
	}

	return Refreshed{
		UserID:       claims.UID,
		DeviceID:     rec.DeviceID,
		SessionID:    rec.SessionID,
		SetID:        rec.SetID,
		AccessToken:  access,
		AccessExpiry: accessRec.ExpiresAt,
	}, nil
}

// RevokeToken revokes the whole set the token belongs to. The token must
// still verify; revoking an already revoked set is a no-op.
func (m *Manager) RevokeToken(ctx context.Context, token, reason string) (store.Credential, error) {
	for _, kind := range []jwt.Kind{jwt.KindAccess, jwt.KindRefresh, jwt.KindID} {
		claims, err := m.signer.Parse(kind, token)
		if err != nil {
			continue
		}
		rec, err := m.records.Get(ctx, claims.UID, claims.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Credential{}, ErrTokenInvalid
			}
			return store.Credential{}, err
		}
		if !hashMatches(rec.TokenHash, token) {
			return store.Credential{}, ErrTokenInvalid
		}
		_, err = m.RevokeSet(ctx, claims.UID, rec.SetID, reason)
		return rec, err
	}
	return store.Credential{}, ErrTokenInvalid
}

// RevokeSet revokes every record of one set and returns how many changed.
func (m *Manager) RevokeSet(ctx context.Context, userID, setID, reason string) (int, error) {
	return m.revokeWhere(ctx, userID, reason, func(c store.Credential) bool { return c.SetID == setID })
}

// RevokeAll revokes every credential of the user.
func (m *Manager) RevokeAll(ctx context.Context, userID, reason string) (int, error) {
	return m.revokeWhere(ctx, userID, reason, func(store.Credential) bool { return true })
}

// RevokeDevice revokes every credential bound to deviceID.
func (m *Manager) RevokeDevice(ctx context.Context, userID, deviceID, reason string) (int, error) {
	return m.revokeWhere(ctx, userID, reason, func(c store.Credential) bool { return c.DeviceID == deviceID })
}

// RevokeSession revokes every credential issued for sessionID.
func (m *Manager) RevokeSession(ctx context.Context, userID, sessionID, reason string) (int, error) {
	return m.revokeWhere(ctx, userID, reason, func(c store.Credential) bool { return c.SessionID == sessionID })
}

// Prune hard deletes expired records and returns how many were removed.
func (m *Manager) Prune(ctx context.Context, userID string) (int, error) {
	all, err := m.records.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	live, err := m.prune(ctx, userID, all, m.now())
	if err != nil {
		return 0, err
	}
	return len(all) - len(live), nil
}

func (m *Manager) lookup(ctx context.Context, token string, kind jwt.Kind) (store.Credential, *jwt.Claims, error) {
	claims, err := m.Inspect(kind, token)
	if err != nil {
		return store.Credential{}, nil, err
	}
	rec, err := m.records.Get(ctx, claims.UID, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Credential{}, nil, ErrTokenInvalid
		}
		return store.Credential{}, nil, err
	}
	if rec.Kind != store.CredentialKind(kind) || !hashMatches(rec.TokenHash, token) {
		return store.Credential{}, nil, ErrTokenInvalid
	}
	if rec.Revoked {
		return store.Credential{}, nil, ErrTokenRevoked
	}
	if !m.now().Before(rec.ExpiresAt) {
		return store.Credential{}, nil, ErrTokenExpired
	}
	return rec, claims, nil
}

func (m *Manager) sign(kind jwt.Kind, id string, claims jwt.Claims) (string, store.Credential, error) {
	claims.RegisteredClaims = gjwt.RegisteredClaims{ID: id}
	token, expires, err := m.signer.Sign(kind, claims)
	if err != nil {
		return "", store.Credential{}, err
	}
	return token, store.Credential{
		ID:        id,
		SetID:     claims.SetID,
		Kind:      store.CredentialKind(kind),
		TokenHash: hashToken(token),
		DeviceID:  claims.DeviceID,
		SessionID: claims.SessionID,
		IssuedAt:  m.now(),
		ExpiresAt: expires,
	}, nil
}

func (m *Manager) revokeWhere(ctx context.Context, userID, reason string, match func(store.Credential) bool) (int, error) {
	all, err := m.records.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	now := m.now()
	var changed []store.Credential
	for _, c := range all {
		if match(c) && revoke(&c, reason, now) {
			changed = append(changed, c)
		}
	}
	if err := m.records.Put(ctx, userID, changed...); err != nil {
		return 0, err
	}
	return len(changed), nil
}

// prune deletes expired records and returns the survivors.
func (m *Manager) prune(ctx context.Context, userID string, all []store.Credential, now time.Time) ([]store.Credential, error) {
	var expired []string
	live := all[:0:0]
	for _, c := range all {
		if !now.Before(c.ExpiresAt) {
			expired = append(expired, c.ID)
			continue
		}
		live = append(live, c)
	}
	if err := m.records.Delete(ctx, userID, expired...); err != nil {
		return nil, err
	}
	return live, nil
}

// activeSets returns usable refresh records ordered by IssuedAt, then ID.
func activeSets(all []store.Credential, now time.Time) []store.Credential {
	var sets []store.Credential
	for _, c := range all {
		if c.Kind == store.KindRefresh && c.Usable(now) {
			sets = append(sets, c)
		}
	}
	sort.Slice(sets, func(i, j int) bool {
		if !sets[i].IssuedAt.Equal(sets[j].IssuedAt) {
			return sets[i].IssuedAt.Before(sets[j].IssuedAt)
		}
		return sets[i].ID < sets[j].ID
	})
	return sets
}

func revokeSet(all []store.Credential, setID, reason string, now time.Time) []store.Credential {
	var out []store.Credential
	for _, c := range all {
		if c.SetID == setID && revoke(&c, reason, now) {
			out = append(out, c)
		}
	}
	return out
}

// revoke marks c revoked and reports whether it changed. Revocation is
// monotonic: the first reason and time are kept.
func revoke(c *store.Credential, reason string, now time.Time) bool {
	if c.Revoked {
		return false
	}
	at := now
	c.Revoked = true
	c.RevokedReason = reason
	c.RevokedAt = &at
	return true
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func hashMatches(stored, token string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(hashToken(token))) == 1
}
