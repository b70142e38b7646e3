package authgate

import "time"

// SecurityReport summarizes the security posture of a built engine. It is
// meant for startup logs and health pages and never contains key material.
type SecurityReport struct {
	SigningMethod string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	IDTokenTTL    time.Duration
	Argon2        PasswordConfigReport

	LockoutMaxAttempts int
	LockoutDuration    time.Duration

	SessionTimeout        time.Duration
	MaxConcurrentSessions int
	RolesConfigured       int

	DeviceBindingEnforced      bool
	DeviceVerificationEnforced bool
	RiskDetectionEnabled       bool

	OTPCodeTTL     time.Duration
	OTPFreshness   time.Duration
	OTPMaxAttempts int

	AuditEnabled   bool
	MetricsEnabled bool

	// Warnings lists settings a production deployment should revisit.
	Warnings []string
}

// PasswordConfigReport mirrors the Argon2 cost parameters in use.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// SecurityReport describes the configuration the engine runs with.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config

	r := SecurityReport{
		SigningMethod: c.JWT.SigningMethod,
		AccessTTL:     c.JWT.AccessTTL,
		RefreshTTL:    c.JWT.RefreshTTL,
		IDTokenTTL:    c.JWT.IDTokenTTL,
		Argon2: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		LockoutMaxAttempts:         c.Lockout.MaxAttempts,
		LockoutDuration:            c.Lockout.Duration,
		SessionTimeout:             e.sessions.Timeout(),
		MaxConcurrentSessions:      c.Session.MaxConcurrent,
		DeviceBindingEnforced:      c.Device.EnforceBinding,
		DeviceVerificationEnforced: c.Device.EnforceVerification,
		RiskDetectionEnabled:       c.Risk.SuspiciousActivityDetection,
		OTPCodeTTL:                 c.OTP.CodeTTL,
		OTPFreshness:               c.OTP.Freshness,
		OTPMaxAttempts:             c.OTP.MaxAttempts,
		AuditEnabled:               c.Audit.Enabled,
		MetricsEnabled:             c.Metrics.Enabled,
	}
	if e.roles != nil {
		r.RolesConfigured = e.roles.Count()
	}

	if c.JWT.SigningMethod == "hs256" {
		r.Warnings = append(r.Warnings, "hs256 shares one secret between signer and verifiers")
	}
	if !c.Device.EnforceBinding {
		r.Warnings = append(r.Warnings, "access tokens are not bound to their device")
	}
	if !c.Risk.SuspiciousActivityDetection {
		r.Warnings = append(r.Warnings, "risk detection is disabled")
	}
	if c.JWT.AccessTTL > time.Hour {
		r.Warnings = append(r.Warnings, "access tokens live longer than one hour")
	}
	if !c.Audit.Enabled {
		r.Warnings = append(r.Warnings, "audit events are not mirrored to a sink")
	}
	return r
}
