package mgenclient

import (
	"io"
	"time"

	"github.com/khrizenriquez/mgen-client/api"
	"github.com/khrizenriquez/mgen-client/internal/events"
	"github.com/khrizenriquez/mgen-client/internal/metrics"
)

// Role is the platform-facing role of the authenticated user.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleDonor Role = "DONOR"
	RoleUser  Role = "USER"
)

// Session is the locally held view of an authenticated user. Degraded marks
// sessions established offline from the email alone; they carry synthetic
// tokens and cannot talk to the platform.
type Session struct {
	UserID    string
	Email     string
	Role      Role
	FirstName string
	LastName  string
	Degraded  bool
	IssuedAt  time.Time
}

// Wire types re-exported from package api.
type (
	Donation              = api.Donation
	DonationInput         = api.DonationInput
	Profile               = api.Profile
	PaymentStatus         = api.PaymentStatus
	PaymentStatusResult   = api.PaymentStatusResult
	CreatePaymentRequest  = api.CreatePaymentRequest
	CreatePaymentResponse = api.CreatePaymentResponse
)

const (
	StatusPending  = api.StatusPending
	StatusApproved = api.StatusApproved
	StatusDeclined = api.StatusDeclined
	StatusExpired  = api.StatusExpired
)

// Event types re-exported from the internal dispatcher.
type (
	Event     = events.Event
	EventSink = events.Sink
)

// NoOpEventSink drops events.
func NoOpEventSink() EventSink { return events.NoOpSink{} }

// NewChannelEventSink buffers events in a channel the caller drains.
func NewChannelEventSink(buffer int) *events.ChannelSink {
	return events.NewChannelSink(buffer)
}

// NewJSONEventSink writes one JSON object per line to w.
func NewJSONEventSink(w io.Writer) *events.JSONWriterSink {
	return events.NewJSONWriterSink(w)
}

// Metric types re-exported from the internal collector.
type (
	MetricID        = metrics.MetricID
	MetricsSnapshot = metrics.Snapshot
)

const (
	MetricLoginSuccess         = metrics.MetricLoginSuccess
	MetricLoginFailure         = metrics.MetricLoginFailure
	MetricLoginDegraded        = metrics.MetricLoginDegraded
	MetricRegisterRequest      = metrics.MetricRegisterRequest
	MetricPasswordResetRequest = metrics.MetricPasswordResetRequest
	MetricRefreshSuccess       = metrics.MetricRefreshSuccess
	MetricRefreshFailure       = metrics.MetricRefreshFailure
	MetricLogout               = metrics.MetricLogout
	MetricValidateOptimistic   = metrics.MetricValidateOptimistic
	MetricUnauthorizedRetry    = metrics.MetricUnauthorizedRetry
	MetricCacheHit             = metrics.MetricCacheHit
	MetricCacheMiss            = metrics.MetricCacheMiss
	MetricCacheStaleRefresh    = metrics.MetricCacheStaleRefresh
	MetricCacheEviction        = metrics.MetricCacheEviction
	MetricPollTick             = metrics.MetricPollTick
	MetricPaymentCreated       = metrics.MetricPaymentCreated
	MetricPaymentCreateFailure = metrics.MetricPaymentCreateFailure
	MetricStatusCheck          = metrics.MetricStatusCheck
	MetricStaleStatusDiscarded = metrics.MetricStaleStatusDiscarded
	MetricRequestLatency       = metrics.MetricRequestLatency
)
