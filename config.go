package authgate

import (
	"errors"
	"time"

	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/lockout"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/risk"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override sections.
type Config struct {
	JWT      JWTConfig
	Lockout  LockoutConfig
	OTP      OTPConfig
	Session  SessionConfig
	Device   DeviceConfig
	Risk     RiskConfig
	Events   EventsConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// KeyConfig is one token key domain.
type KeyConfig struct {
	PrivateKey []byte
	PublicKey  []byte
	Audience   string
	KeyID      string
}

// JWTConfig configures the three signing domains.
type JWTConfig struct {
	Issuer        string
	SigningMethod string // "ed25519" (default) or "hs256"
	Leeway        time.Duration
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	IDTokenTTL    time.Duration
	Access        KeyConfig
	Refresh       KeyConfig
	ID            KeyConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig sets the consecutive-failure threshold and lock length.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig configures challenges, TOTP and backup codes. Key derives and
// hashes delivered codes and must be at least 16 bytes.
type OTPConfig struct {
	Key                 []byte
	CodeTTL             time.Duration
	Freshness           time.Duration
	MaxAttempts         int
	CodeDigits          int
	SensitiveOperations []string
	Issuer              string
	TOTPSkew            uint
	BackupCodeCount     int
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig caps concurrent sessions and sets the sliding idle timeout.
type SessionConfig struct {
	Timeout       time.Duration
	MaxConcurrent int
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig toggles device checks.
//
// EnforceVerification makes unknown or untrusted devices require an OTP.
// EnforceBinding rejects access tokens presented from a device other than the
// one they were issued to.
type DeviceConfig struct {
	EnforceVerification bool
	EnforceBinding      bool
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig configures suspicious-activity detection and login history.
type RiskConfig struct {
	SuspiciousActivityDetection bool
	Rules                       risk.Rules
	HistoryRetention            time.Duration
	HistoryLimit                int
}

// EventsConfig caps the stored security events per user.
type EventsConfig struct {
	MaxPerUser int
}

// PasswordConfig holds argon2id parameters for the default hasher. MaxBytes
// bounds submitted passwords; Login refuses longer input before hashing.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MaxBytes    int
}

// HasherConfig converts the section into the argon2id hasher settings.
func (p PasswordConfig) HasherConfig() password.Config {
	return password.Config{
		Memory:      p.Memory,
		Time:        p.Time,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
		MaxBytes:    p.MaxBytes,
	}
}

// AuditConfig controls the async audit mirror.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	EmitTimeout time.Duration
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the stock configuration without key material.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:        "authgate",
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			IDTokenTTL:    15 * time.Minute,
			Access:        KeyConfig{Audience: "authgate:access"},
			Refresh:       KeyConfig{Audience: "authgate:refresh"},
			ID:            KeyConfig{Audience: "authgate:id"},
		},
		Lockout: LockoutConfig{
			MaxAttempts: lockout.DefaultThreshold,
			Duration:    lockout.DefaultDuration,
		},
		OTP: OTPConfig{
			CodeTTL:         otp.DefaultCodeTTL,
			Freshness:       otp.DefaultFreshness,
			MaxAttempts:     otp.DefaultMaxAttempts,
			CodeDigits:      otp.DefaultCodeDigits,
			Issuer:          "authgate",
			TOTPSkew:        1,
			BackupCodeCount: otp.DefaultBackupCodeCount,
		},
		Session: SessionConfig{
			Timeout:       120 * time.Minute,
			MaxConcurrent: 3,
		},
		Device: DeviceConfig{
			EnforceVerification: true,
			EnforceBinding:      false,
		},
		Risk: RiskConfig{
			SuspiciousActivityDetection: true,
			Rules:                       risk.DefaultRules(),
			HistoryRetention:            7 * 24 * time.Hour,
			HistoryLimit:                200,
		},
		Events: EventsConfig{
			MaxPerUser: 100,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MaxBytes:    password.DefaultMaxBytes,
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			EmitTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Access = cloneKey(cfg.JWT.Access)
	out.JWT.Refresh = cloneKey(cfg.JWT.Refresh)
	out.JWT.ID = cloneKey(cfg.JWT.ID)
	out.OTP.Key = cloneBytes(cfg.OTP.Key)
	out.OTP.SensitiveOperations = append([]string(nil), cfg.OTP.SensitiveOperations...)
	return out
}

func cloneKey(k KeyConfig) KeyConfig {
	k.PrivateKey = cloneBytes(k.PrivateKey)
	k.PublicKey = cloneBytes(k.PublicKey)
	return k
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate returns the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 || c.JWT.IDTokenTTL <= 0 {
		return errors.New("JWT token TTLs must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		for _, k := range []KeyConfig{c.JWT.Access, c.JWT.Refresh, c.JWT.ID} {
			if len(k.PrivateKey) == 0 || len(k.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey for every key domain")
			}
		}
	case "hs256":
		for _, k := range []KeyConfig{c.JWT.Access, c.JWT.Refresh, c.JWT.ID} {
			if len(k.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes for every key domain")
			}
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// OTP
	if len(c.OTP.Key) < 16 {
		return errors.New("OTP Key must be at least 16 bytes")
	}
	if c.OTP.CodeTTL <= 0 || c.OTP.Freshness <= 0 {
		return errors.New("OTP CodeTTL and Freshness must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.CodeDigits < 6 || c.OTP.CodeDigits > 9 {
		return errors.New("OTP CodeDigits must be within [6, 9]")
	}
	if c.OTP.BackupCodeCount < 0 {
		return errors.New("OTP BackupCodeCount must be >= 0")
	}

	// Session
	if c.Session.Timeout <= 0 {
		return errors.New("Session Timeout must be > 0")
	}
	if c.Session.MaxConcurrent <= 0 {
		return errors.New("Session MaxConcurrent must be > 0")
	}

	// Risk
	if c.Risk.HistoryRetention <= 0 {
		return errors.New("Risk HistoryRetention must be > 0")
	}
	if c.Risk.HistoryLimit <= 0 {
		return errors.New("Risk HistoryLimit must be > 0")
	}

	// Events
	if c.Events.MaxPerUser <= 0 {
		return errors.New("Events MaxPerUser must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 || c.Password.Parallelism < 1 {
		return errors.New("Password Time and Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 || c.Password.KeyLength < 16 {
		return errors.New("Password SaltLength and KeyLength must be >= 16")
	}
	if c.Password.MaxBytes < password.MinBytes {
		return errors.New("Password MaxBytes must be >= 10")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.EmitTimeout < 0 {
		return errors.New("Audit EmitTimeout must be >= 0")
	}
	return nil
}

func (c *Config) jwtConfig(now func() time.Time) jwt.Config {
	method := jwt.MethodEd25519
	if c.JWT.SigningMethod == "hs256" {
		method = jwt.MethodHS256
	}
	key := func(k KeyConfig, ttl time.Duration) jwt.KeyConfig {
		return jwt.KeyConfig{
			TTL:           ttl,
			SigningMethod: method,
			PrivateKey:    k.PrivateKey,
			PublicKey:     k.PublicKey,
			Audience:      k.Audience,
			KeyID:         k.KeyID,
		}
	}
	return jwt.Config{
		Issuer:     c.JWT.Issuer,
		Leeway:     c.JWT.Leeway,
		RequireIAT: true,
		Now:        now,
		Access:     key(c.JWT.Access, c.JWT.AccessTTL),
		Refresh:    key(c.JWT.Refresh, c.JWT.RefreshTTL),
		ID:         key(c.JWT.ID, c.JWT.IDTokenTTL),
	}
}

func (c *Config) otpSettings() otp.Settings {
	return otp.Settings{
		Key:                       c.OTP.Key,
		CodeTTL:                   c.OTP.CodeTTL,
		Freshness:                 c.OTP.Freshness,
		MaxAttempts:               c.OTP.MaxAttempts,
		CodeDigits:                c.OTP.CodeDigits,
		SensitiveOperations:       c.OTP.SensitiveOperations,
		EnforceDeviceVerification: c.Device.EnforceVerification,
		Issuer:                    c.OTP.Issuer,
		TOTPSkew:                  c.OTP.TOTPSkew,
		BackupCodeCount:           c.OTP.BackupCodeCount,
	}
}

func (c *Config) lockoutPolicy() lockout.Policy {
	return lockout.Policy{Threshold: c.Lockout.MaxAttempts, Duration: c.Lockout.Duration}
}
