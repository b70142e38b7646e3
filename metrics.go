package authgate

import internalmetrics "github.com/MrEthical07/authgate/internal/metrics"

// MetricID identifies a counter or histogram in a MetricsSnapshot.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess        = internalmetrics.MetricLoginSuccess
	MetricLoginFailure        = internalmetrics.MetricLoginFailure
	MetricLoginLocked         = internalmetrics.MetricLoginLocked
	MetricLoginBlocked        = internalmetrics.MetricLoginBlocked
	MetricAccountLocked       = internalmetrics.MetricAccountLocked
	MetricOTPRequired         = internalmetrics.MetricOTPRequired
	MetricOTPIssued           = internalmetrics.MetricOTPIssued
	MetricOTPVerified         = internalmetrics.MetricOTPVerified
	MetricOTPFailure          = internalmetrics.MetricOTPFailure
	MetricOTPDeliveryFailure  = internalmetrics.MetricOTPDeliveryFailure
	MetricBackupCodeUsed      = internalmetrics.MetricBackupCodeUsed
	MetricTOTPEnabled         = internalmetrics.MetricTOTPEnabled
	MetricRefreshSuccess      = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure      = internalmetrics.MetricRefreshFailure
	MetricDeviceMismatch      = internalmetrics.MetricDeviceMismatch
	MetricSessionCreated      = internalmetrics.MetricSessionCreated
	MetricSessionEvicted      = internalmetrics.MetricSessionEvicted
	MetricSessionExpired      = internalmetrics.MetricSessionExpired
	MetricLogout              = internalmetrics.MetricLogout
	MetricLogoutAll           = internalmetrics.MetricLogoutAll
	MetricAuthenticateSuccess = internalmetrics.MetricAuthenticateSuccess
	MetricAuthenticateFailure = internalmetrics.MetricAuthenticateFailure
	MetricRiskElevated        = internalmetrics.MetricRiskElevated
	MetricStoreUnavailable    = internalmetrics.MetricStoreUnavailable
	MetricAuthenticateLatency = internalmetrics.MetricAuthenticateLatency
)

// Metrics holds atomic counters and the optional latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a Metrics instance. When cfg.Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
