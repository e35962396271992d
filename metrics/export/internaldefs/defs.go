// Package internaldefs holds the shared metric name tables used by the
// Prometheus and OTel exporters. It is not part of the public API surface.
package internaldefs

import (
	mgenclient "github.com/khrizenriquez/mgen-client"
)

// CounterDef binds a metric ID to its exported name and help text.
type CounterDef struct {
	ID   mgenclient.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram metric ID to its exported name and help
// text.
type HistogramDef struct {
	ID   mgenclient.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: mgenclient.MetricLoginSuccess, Name: "mgen_login_success_total", Help: "Successful logins."},
	{ID: mgenclient.MetricLoginFailure, Name: "mgen_login_failure_total", Help: "Failed login attempts."},
	{ID: mgenclient.MetricLoginDegraded, Name: "mgen_login_degraded_total", Help: "Degraded offline sessions established."},
	{ID: mgenclient.MetricRegisterRequest, Name: "mgen_register_request_total", Help: "Account registration requests."},
	{ID: mgenclient.MetricPasswordResetRequest, Name: "mgen_password_reset_request_total", Help: "Password reset requests."},
	{ID: mgenclient.MetricRefreshSuccess, Name: "mgen_refresh_success_total", Help: "Successful token refreshes."},
	{ID: mgenclient.MetricRefreshFailure, Name: "mgen_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: mgenclient.MetricLogout, Name: "mgen_logout_total", Help: "Logout operations."},
	{ID: mgenclient.MetricValidateOptimistic, Name: "mgen_validate_optimistic_total", Help: "Token validations answered optimistically while offline."},
	{ID: mgenclient.MetricUnauthorizedRetry, Name: "mgen_unauthorized_retry_total", Help: "Requests retried after a coalesced token refresh."},
	{ID: mgenclient.MetricCacheHit, Name: "mgen_cache_hit_total", Help: "Cache reads served fresh from memory."},
	{ID: mgenclient.MetricCacheMiss, Name: "mgen_cache_miss_total", Help: "Cache reads with no stored value."},
	{ID: mgenclient.MetricCacheStaleRefresh, Name: "mgen_cache_stale_refresh_total", Help: "Cache reads that refetched a stale value."},
	{ID: mgenclient.MetricCacheEviction, Name: "mgen_cache_eviction_total", Help: "Cache entry evictions."},
	{ID: mgenclient.MetricPollTick, Name: "mgen_poll_tick_total", Help: "Background poller ticks."},
	{ID: mgenclient.MetricPaymentCreated, Name: "mgen_payment_created_total", Help: "Gateway checkouts opened."},
	{ID: mgenclient.MetricPaymentCreateFailure, Name: "mgen_payment_create_failure_total", Help: "Failed gateway checkout creations."},
	{ID: mgenclient.MetricStatusCheck, Name: "mgen_status_check_total", Help: "Payment status checks."},
	{ID: mgenclient.MetricStaleStatusDiscarded, Name: "mgen_stale_status_discarded_total", Help: "PENDING responses discarded for already settled payments."},
}

var HistogramDefs = []HistogramDef{
	{ID: mgenclient.MetricRequestLatency, Name: "mgen_request_latency_seconds", Help: "Platform request latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching the
// collector's fixed buckets.
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

// HistogramBoundSuffix names each bound for backends that cannot carry the
// le label.
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

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms use.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
