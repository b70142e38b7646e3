package authgate

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/risk"
	"github.com/MrEthical07/authgate/store"
)

// AccountStatus is the lifecycle state of a user account. Only
// AccountActive may authenticate.
type AccountStatus string

const (
	AccountDraft    AccountStatus = "draft"
	AccountPending  AccountStatus = "pending"
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
	AccountBanned   AccountStatus = "banned"
	AccountDeleted  AccountStatus = "deleted"
	AccountArchived AccountStatus = "archived"
)

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountDraft, AccountPending, AccountActive, AccountInactive, AccountBanned, AccountDeleted, AccountArchived:
		return true
	}
	return false
}

// UserRecord is the account as seen by the engine. The engine never stores
// it; the UserProvider owns it.
type UserRecord struct {
	UserID       string
	Identifier   string
	Email        string
	Phone        string
	PasswordHash string
	Status       AccountStatus
	Role         string
}

// UserProvider connects the engine to the application's user database.
// Lookups of unknown users return ErrUserNotFound.
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	UpdateAccountStatus(ctx context.Context, userID string, status AccountStatus) (UserRecord, error)
}

// PasswordHasher verifies password hashes. password.Argon2 satisfies it.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// PasswordHashUpdater is an optional UserProvider extension. When present and
// the hasher reports a stored hash as outdated, a successful login rehashes
// the password and hands the new hash over.
type PasswordHashUpdater interface {
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

type upgradeChecker interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}

// OTPSender delivers a generated code. The returned time is the expiry the
// channel communicated to the user, or zero.
type OTPSender interface {
	Send(ctx context.Context, user UserRecord, purpose string, method otp.Method, code string) (time.Time, error)
}

// LoginRequest is the input of Engine.Login. OTPCode completes a pending
// challenge; OTPMethod asks for a challenge to be issued when one is needed.
type LoginRequest struct {
	Identifier string
	Password   string
	OTPCode    string
	OTPMethod  otp.Method
}

// LoginOutcome distinguishes a finished login from one waiting for an OTP.
type LoginOutcome string

const (
	OutcomeAuthenticated LoginOutcome = "authenticated"
	OutcomeOTPRequired   LoginOutcome = "otp_required"
)

// Tokens is one issued credential set.
type Tokens struct {
	AccessToken   string
	RefreshToken  string
	IDToken       string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
}

// LoginResult is returned by Engine.Login. With OutcomeOTPRequired no session
// exists and Tokens is nil.
type LoginResult struct {
	Outcome          LoginOutcome
	UserID           string
	Reasons          []string
	AvailableMethods []otp.Method
	Challenge        *ChallengeResult

	Tokens    *Tokens
	SessionID string
	DeviceID  string
	Risk      risk.Assessment
}

// ChallengeResult describes an issued OTP challenge. DeliveryErr is set when
// the sender failed; the challenge stays valid and can be re-requested.
type ChallengeResult struct {
	ChallengeID string
	Method      otp.Method
	Purpose     string
	ExpiresAt   time.Time
	DeliveryErr error
}

// RefreshResult is returned by Engine.Refresh. The refresh token is not
// rotated.
type RefreshResult struct {
	UserID       string
	SessionID    string
	DeviceID     string
	AccessToken  string
	AccessExpiry time.Time
}

// AuthResult is the authenticated principal of one request.
type AuthResult struct {
	User      UserRecord
	Token     string
	TokenID   string
	SessionID string
	DeviceID  string
	Device    *store.Device
	Risk      risk.Assessment
}

// TOTPSetup is the first phase of authenticator enrollment.
type TOTPSetup struct {
	Secret string
	URI    string
}

// AuditEvent is a structured audit record mirrored by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an AuditSink that writes one JSON event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
