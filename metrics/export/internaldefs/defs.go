package internaldefs

import (
	"github.com/MrEthical07/authgate"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful logins."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: authgate.MetricLoginLocked, Name: "authgate_login_locked_total", Help: "Logins rejected because the account is locked."},
	{ID: authgate.MetricLoginBlocked, Name: "authgate_login_blocked_total", Help: "Logins blocked by the risk engine."},
	{ID: authgate.MetricAccountLocked, Name: "authgate_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: authgate.MetricOTPRequired, Name: "authgate_otp_required_total", Help: "Operations that required an OTP."},
	{ID: authgate.MetricOTPIssued, Name: "authgate_otp_issued_total", Help: "Issued OTP challenges."},
	{ID: authgate.MetricOTPVerified, Name: "authgate_otp_verified_total", Help: "Successful OTP verifications."},
	{ID: authgate.MetricOTPFailure, Name: "authgate_otp_failure_total", Help: "Failed OTP verifications."},
	{ID: authgate.MetricOTPDeliveryFailure, Name: "authgate_otp_delivery_failure_total", Help: "OTP codes the sender failed to deliver."},
	{ID: authgate.MetricBackupCodeUsed, Name: "authgate_backup_code_used_total", Help: "Challenges completed with a backup code."},
	{ID: authgate.MetricTOTPEnabled, Name: "authgate_totp_enabled_total", Help: "Completed TOTP enrollments."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authgate.MetricRefreshFailure, Name: "authgate_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authgate.MetricDeviceMismatch, Name: "authgate_device_mismatch_total", Help: "Tokens presented from a device other than their binding."},
	{ID: authgate.MetricSessionCreated, Name: "authgate_session_created_total", Help: "Created sessions."},
	{ID: authgate.MetricSessionEvicted, Name: "authgate_session_evicted_total", Help: "Sessions evicted by the concurrent-session cap."},
	{ID: authgate.MetricSessionExpired, Name: "authgate_session_expired_total", Help: "Sessions ended by the idle timeout."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Single-session logouts."},
	{ID: authgate.MetricLogoutAll, Name: "authgate_logout_all_total", Help: "Logout-all operations."},
	{ID: authgate.MetricAuthenticateSuccess, Name: "authgate_authenticate_success_total", Help: "Accepted access tokens."},
	{ID: authgate.MetricAuthenticateFailure, Name: "authgate_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: authgate.MetricRiskElevated, Name: "authgate_risk_elevated_total", Help: "Assessments above the low risk level."},
	{ID: authgate.MetricStoreUnavailable, Name: "authgate_store_unavailable_total", Help: "Operations failed by the store or lock backend."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricAuthenticateLatency, Name: "authgate_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramBounds are the upper bounds in seconds of the latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix renders HistogramBounds as instrument name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName and AuditFailedName are the dispatcher counters.
const (
	AuditDroppedName = "authgate_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
	AuditFailedName  = "authgate_audit_failed_total"
	AuditFailedHelp  = "Audit events the sink rejected."
)

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into the running totals both
// exporters publish.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
