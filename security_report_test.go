package authgate

import (
	"strings"
	"testing"
	"time"
)

func TestSecurityReportReflectsConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Device.EnforceBinding = true
	cfg.Session.MaxConcurrent = 2
	env := newTestEnv(t, cfg)

	r := env.engine.SecurityReport()
	if r.SigningMethod != "hs256" || r.MaxConcurrentSessions != 2 || !r.DeviceBindingEnforced {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.AccessTTL != 15*time.Minute || r.LockoutMaxAttempts != 5 {
		t.Fatalf("defaults not reported: %+v", r)
	}
	if r.SessionTimeout != cfg.Session.Timeout || r.RolesConfigured != 3 {
		t.Fatalf("expected session timeout and 3 roles, got %+v", r)
	}
	if r.Argon2.Memory != cfg.Password.Memory {
		t.Fatalf("expected argon2 parameters in report")
	}

	joined := strings.Join(r.Warnings, "; ")
	if !strings.Contains(joined, "hs256") {
		t.Fatalf("expected an hs256 warning, got %q", joined)
	}
	if strings.Contains(joined, "bound to their device") {
		t.Fatalf("binding is enforced, got %q", joined)
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *Engine
	if r := e.SecurityReport(); r.SigningMethod != "" || len(r.Warnings) != 0 {
		t.Fatalf("expected empty report, got %+v", r)
	}
}
