// Package config loads the authgate service configuration from the
// environment and an optional .env file using Viper, and turns it into an
// authgate.Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/authgate"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Settings is the flat environment view of the service configuration.
type Settings struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// StoreDriver selects memory, redis or postgres.
	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`
	// RedisLock serializes users across processes through Redis instead of
	// an in-process mutex.
	RedisLock   bool   `mapstructure:"REDIS_LOCK"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	JWTSigningMethod string        `mapstructure:"JWT_SIGNING_METHOD"`
	JWTIssuer        string        `mapstructure:"JWT_ISSUER"`
	JWTAccessTTL     time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL    time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	JWTIDTokenTTL    time.Duration `mapstructure:"JWT_ID_TOKEN_TTL"`
	// Key values are an HS256 secret, a PEM block, or a path to a PEM file.
	JWTAccessPrivateKey  string `mapstructure:"JWT_ACCESS_PRIVATE_KEY"`
	JWTAccessPublicKey   string `mapstructure:"JWT_ACCESS_PUBLIC_KEY"`
	JWTRefreshPrivateKey string `mapstructure:"JWT_REFRESH_PRIVATE_KEY"`
	JWTRefreshPublicKey  string `mapstructure:"JWT_REFRESH_PUBLIC_KEY"`
	JWTIDPrivateKey      string `mapstructure:"JWT_ID_PRIVATE_KEY"`
	JWTIDPublicKey       string `mapstructure:"JWT_ID_PUBLIC_KEY"`

	OTPKey         string        `mapstructure:"OTP_KEY"`
	OTPCodeTTL     time.Duration `mapstructure:"OTP_CODE_TTL"`
	OTPMaxAttempts int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPIssuer      string        `mapstructure:"OTP_ISSUER"`
	// OTPPolicyFile is an optional Rego module replacing the built-in OTP
	// requirement rules.
	OTPPolicyFile string `mapstructure:"OTP_POLICY_FILE"`

	LockoutMaxAttempts int           `mapstructure:"LOCKOUT_MAX_ATTEMPTS"`
	LockoutDuration    time.Duration `mapstructure:"LOCKOUT_DURATION"`

	SessionTimeout       time.Duration `mapstructure:"SESSION_TIMEOUT"`
	SessionMaxConcurrent int           `mapstructure:"SESSION_MAX_CONCURRENT"`

	DeviceEnforceVerification bool `mapstructure:"DEVICE_ENFORCE_VERIFICATION"`
	DeviceEnforceBinding      bool `mapstructure:"DEVICE_ENFORCE_BINDING"`
	RiskDetection             bool `mapstructure:"RISK_DETECTION"`

	EventsMaxPerUser int `mapstructure:"EVENTS_MAX_PER_USER"`

	// PasswordMaxBytes caps submitted passwords.
	PasswordMaxBytes int `mapstructure:"PASSWORD_MAX_BYTES"`

	AuditEnabled bool `mapstructure:"AUDIT_ENABLED"`
	// KafkaBrokers is a comma-separated broker list. When set, audit events
	// are mirrored to AuditKafkaTopic.
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	// ThrottleLimit caps login and OTP requests per client address within
	// ThrottleWindow. It needs the redis store; zero disables it.
	ThrottleLimit  int           `mapstructure:"THROTTLE_LIMIT"`
	ThrottleWindow time.Duration `mapstructure:"THROTTLE_WINDOW"`

	MetricsEnabled    bool `mapstructure:"METRICS_ENABLED"`
	MetricsHistograms bool `mapstructure:"METRICS_HISTOGRAMS"`
}

// Load reads envFile when it exists, then the environment, which wins. An
// empty envFile means ".env".
func Load(envFile string) (*Settings, error) {
	v := viper.New()

	if envFile == "" {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	d := authgate.DefaultConfig()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "authgate")
	v.SetDefault("REDIS_LOCK", true)
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("JWT_SIGNING_METHOD", d.JWT.SigningMethod)
	v.SetDefault("JWT_ISSUER", d.JWT.Issuer)
	v.SetDefault("JWT_ACCESS_TTL", d.JWT.AccessTTL)
	v.SetDefault("JWT_REFRESH_TTL", d.JWT.RefreshTTL)
	v.SetDefault("JWT_ID_TOKEN_TTL", d.JWT.IDTokenTTL)
	for _, k := range []string{
		"JWT_ACCESS_PRIVATE_KEY", "JWT_ACCESS_PUBLIC_KEY",
		"JWT_REFRESH_PRIVATE_KEY", "JWT_REFRESH_PUBLIC_KEY",
		"JWT_ID_PRIVATE_KEY", "JWT_ID_PUBLIC_KEY",
		"OTP_KEY", "OTP_POLICY_FILE", "KAFKA_BROKERS",
	} {
		v.SetDefault(k, "")
	}

	v.SetDefault("OTP_CODE_TTL", d.OTP.CodeTTL)
	v.SetDefault("OTP_MAX_ATTEMPTS", d.OTP.MaxAttempts)
	v.SetDefault("OTP_ISSUER", d.OTP.Issuer)

	v.SetDefault("LOCKOUT_MAX_ATTEMPTS", d.Lockout.MaxAttempts)
	v.SetDefault("LOCKOUT_DURATION", d.Lockout.Duration)
	v.SetDefault("SESSION_TIMEOUT", d.Session.Timeout)
	v.SetDefault("SESSION_MAX_CONCURRENT", d.Session.MaxConcurrent)
	v.SetDefault("DEVICE_ENFORCE_VERIFICATION", d.Device.EnforceVerification)
	v.SetDefault("DEVICE_ENFORCE_BINDING", d.Device.EnforceBinding)
	v.SetDefault("RISK_DETECTION", d.Risk.SuspiciousActivityDetection)
	v.SetDefault("EVENTS_MAX_PER_USER", d.Events.MaxPerUser)
	v.SetDefault("PASSWORD_MAX_BYTES", d.Password.MaxBytes)

	v.SetDefault("AUDIT_ENABLED", false)
	v.SetDefault("AUDIT_KAFKA_TOPIC", "authgate.audit")
	v.SetDefault("THROTTLE_LIMIT", 20)
	v.SetDefault("THROTTLE_WINDOW", time.Minute)
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_HISTOGRAMS", false)
}

func (s *Settings) validate() error {
	if s.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch s.StoreDriver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if s.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", s.StoreDriver)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown LOG_FORMAT %q", s.LogFormat)
	}
	if s.ThrottleLimit < 0 || (s.ThrottleLimit > 0 && s.ThrottleWindow <= 0) {
		return errors.New("config: THROTTLE_WINDOW must be > 0 when THROTTLE_LIMIT is set")
	}
	if s.AuditEnabled && len(s.KafkaBrokerList()) > 0 && s.AuditKafkaTopic == "" {
		return errors.New("config: AUDIT_KAFKA_TOPIC must be set when KAFKA_BROKERS is set")
	}
	return nil
}

// KafkaBrokerList splits KafkaBrokers.
func (s *Settings) KafkaBrokerList() []string {
	if s == nil || s.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(s.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Engine builds the engine configuration. Key material is resolved here, so
// a missing key file fails at startup rather than on the first login.
func (s *Settings) Engine() (authgate.Config, error) {
	cfg := authgate.DefaultConfig()

	cfg.JWT.SigningMethod = strings.ToLower(s.JWTSigningMethod)
	cfg.JWT.Issuer = s.JWTIssuer
	cfg.JWT.AccessTTL = s.JWTAccessTTL
	cfg.JWT.RefreshTTL = s.JWTRefreshTTL
	cfg.JWT.IDTokenTTL = s.JWTIDTokenTTL

	keys := []struct {
		dst         *authgate.KeyConfig
		priv, pub   string
		privN, pubN string
	}{
		{&cfg.JWT.Access, s.JWTAccessPrivateKey, s.JWTAccessPublicKey, "JWT_ACCESS_PRIVATE_KEY", "JWT_ACCESS_PUBLIC_KEY"},
		{&cfg.JWT.Refresh, s.JWTRefreshPrivateKey, s.JWTRefreshPublicKey, "JWT_REFRESH_PRIVATE_KEY", "JWT_REFRESH_PUBLIC_KEY"},
		{&cfg.JWT.ID, s.JWTIDPrivateKey, s.JWTIDPublicKey, "JWT_ID_PRIVATE_KEY", "JWT_ID_PUBLIC_KEY"},
	}
	for _, k := range keys {
		priv, err := keyMaterial(k.privN, k.priv)
		if err != nil {
			return authgate.Config{}, err
		}
		pub, err := keyMaterial(k.pubN, k.pub)
		if err != nil {
			return authgate.Config{}, err
		}
		k.dst.PrivateKey = priv
		k.dst.PublicKey = pub
	}

	cfg.OTP.Key = []byte(s.OTPKey)
	cfg.OTP.CodeTTL = s.OTPCodeTTL
	cfg.OTP.MaxAttempts = s.OTPMaxAttempts
	cfg.OTP.Issuer = s.OTPIssuer

	cfg.Lockout.MaxAttempts = s.LockoutMaxAttempts
	cfg.Lockout.Duration = s.LockoutDuration
	cfg.Session.Timeout = s.SessionTimeout
	cfg.Session.MaxConcurrent = s.SessionMaxConcurrent
	cfg.Device.EnforceVerification = s.DeviceEnforceVerification
	cfg.Device.EnforceBinding = s.DeviceEnforceBinding
	cfg.Risk.SuspiciousActivityDetection = s.RiskDetection
	cfg.Events.MaxPerUser = s.EventsMaxPerUser
	cfg.Password.MaxBytes = s.PasswordMaxBytes

	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsHistograms

	if err := cfg.Validate(); err != nil {
		return authgate.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// keyMaterial accepts an inline PEM block, a path to an existing file, or a
// raw secret, in that order.
func keyMaterial(name, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(strings.TrimSpace(value), "-----BEGIN") {
		return []byte(value), nil
	}
	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", name, err)
		}
		return data, nil
	}
	return []byte(value), nil
}
