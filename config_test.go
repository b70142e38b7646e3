package authgate

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test config",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "access ttl not shorter than refresh",
			mutate: func(c *Config) {
				c.JWT.AccessTTL = c.JWT.RefreshTTL
			},
			wantValid: false,
		},
		{
			name: "signing method unknown",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "hs256 short key",
			mutate: func(c *Config) {
				c.JWT.Refresh.PrivateKey = []byte("short")
			},
			wantValid: false,
		},
		{
			name: "ed25519 without keys",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "ed25519"
			},
			wantValid: false,
		},
		{
			name: "lockout attempts zero",
			mutate: func(c *Config) {
				c.Lockout.MaxAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "otp key short",
			mutate: func(c *Config) {
				c.OTP.Key = []byte("too-short")
			},
			wantValid: false,
		},
		{
			name: "otp digits out of range",
			mutate: func(c *Config) {
				c.OTP.CodeDigits = 10
			},
			wantValid: false,
		},
		{
			name: "session cap zero",
			mutate: func(c *Config) {
				c.Session.MaxConcurrent = 0
			},
			wantValid: false,
		},
		{
			name: "events cap zero",
			mutate: func(c *Config) {
				c.Events.MaxPerUser = 0
			},
			wantValid: false,
		},
		{
			name: "password memory too low",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
			wantValid: false,
		},
		{
			name: "password max bytes unset",
			mutate: func(c *Config) {
				c.Password.MaxBytes = 0
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero while enabled",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero while disabled",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Lockout.MaxAttempts != 5 || cfg.Lockout.Duration != 30*time.Minute {
		t.Fatalf("unexpected lockout defaults %+v", cfg.Lockout)
	}
	if cfg.Session.MaxConcurrent != 3 || cfg.Session.Timeout != 120*time.Minute {
		t.Fatalf("unexpected session defaults %+v", cfg.Session)
	}
	if cfg.OTP.CodeTTL != 5*time.Minute || cfg.OTP.MaxAttempts != 3 || cfg.OTP.Freshness != 10*time.Minute {
		t.Fatalf("unexpected otp defaults %+v", cfg.OTP)
	}
	if cfg.JWT.AccessTTL != 15*time.Minute || cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token lifetimes %+v", cfg.JWT)
	}
	if !cfg.Device.EnforceVerification || cfg.Device.EnforceBinding {
		t.Fatalf("unexpected device defaults %+v", cfg.Device)
	}
	if cfg.Events.MaxPerUser != 100 {
		t.Fatalf("unexpected events cap %d", cfg.Events.MaxPerUser)
	}

	// Defaults carry no key material.
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected default config without keys to be rejected")
	}
}

func TestConfigValidateEd25519(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.SigningMethod = "ed25519"
	for _, k := range []*KeyConfig{&cfg.JWT.Access, &cfg.JWT.Refresh, &cfg.JWT.ID} {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		k.PrivateKey = priv
		k.PublicKey = pub
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid ed25519 config, got %v", err)
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)
	clone.JWT.Access.PrivateKey[0] = 'X'
	clone.OTP.Key[0] = 'X'
	if cfg.JWT.Access.PrivateKey[0] == 'X' || cfg.OTP.Key[0] == 'X' {
		t.Fatalf("clone must not share key material")
	}
}
