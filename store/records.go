package store

import (
	"encoding/json"
	"time"

	"github.com/MrEthical07/authgate/lockout"
	"github.com/MrEthical07/authgate/otp"
)

// CredentialKind distinguishes the three signing domains.
type CredentialKind string

const (
	KindAccess  CredentialKind = "access"
	KindRefresh CredentialKind = "refresh"
	KindID      CredentialKind = "id"
)

// Credential is one issued bearer token. Only the SHA-256 of the token value
// is stored.
type Credential struct {
	ID            string         `json:"id"`
	SetID         string         `json:"set_id"`
	Kind          CredentialKind `json:"kind"`
	TokenHash     string         `json:"token_hash"`
	DeviceID      string         `json:"device_id"`
	SessionID     string         `json:"session_id,omitempty"`
	IssuedAt      time.Time      `json:"issued_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	LastUsedAt    *time.Time     `json:"last_used_at,omitempty"`
	Revoked       bool           `json:"revoked"`
	RevokedReason string         `json:"revoked_reason,omitempty"`
	RevokedAt     *time.Time     `json:"revoked_at,omitempty"`
}

func (c Credential) RecordID() string { return c.ID }

// Usable reports !Revoked && now < ExpiresAt.
func (c Credential) Usable(now time.Time) bool {
	return !c.Revoked && now.Before(c.ExpiresAt)
}

// Session is a logical client instance, tracked apart from its tokens.
type Session struct {
	ID           string     `json:"id"`
	DeviceID     string     `json:"device_id"`
	IP           string     `json:"ip,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Active       bool       `json:"active"`
	EndedReason  string     `json:"ended_reason,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

func (s Session) RecordID() string { return s.ID }

// Device is a known client fingerprint.
type Device struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	OS        string     `json:"os"`
	Browser   string     `json:"browser"`
	LastIP    string     `json:"last_ip,omitempty"`
	Country   string     `json:"country,omitempty"`
	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
	Trusted   bool       `json:"trusted"`
	TrustedAt *time.Time `json:"trusted_at,omitempty"`
	Active    bool       `json:"active"`
}

func (d Device) RecordID() string { return d.ID }

// Severity grades security events.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is an append-only security audit entry. Metadata is opaque and never
// drives control flow.
type Event struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Severity Severity        `json:"severity"`
	At       time.Time       `json:"at"`
	DeviceID string          `json:"device_id,omitempty"`
	IP       string          `json:"ip,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (e Event) RecordID() string { return e.ID }

// LoginAttempt is one login history entry.
type LoginAttempt struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Success  bool      `json:"success"`
	IP       string    `json:"ip,omitempty"`
	Country  string    `json:"country,omitempty"`
	DeviceID string    `json:"device_id,omitempty"`
}

func (a LoginAttempt) RecordID() string { return a.ID }

// SecurityState is the per-user singleton: lockout counters plus OTP state.
type SecurityState struct {
	Lockout   lockout.State `json:"lockout"`
	OTP       otp.State     `json:"otp"`
	UpdatedAt time.Time     `json:"updated_at"`
}
