package mgenclient

import (
	"errors"
	"net/url"
	"time"
)

// PlatformConfig locates the donation platform.
type PlatformConfig struct {
	// BaseURL is the platform origin, e.g. https://donations.example.org.
	BaseURL string

	// APIPrefix is prepended to every API path. Defaults to /api.
	APIPrefix string

	// HealthPath is the reachability probe used during login fallback.
	// Defaults to /health.
	HealthPath string

	// RequestTimeout bounds individual HTTP requests. Defaults to 15s.
	RequestTimeout time.Duration
}

// LoginConfig tunes session establishment and token upkeep.
type LoginConfig struct {
	// AllowDegradedFallback permits offline sessions when both the login
	// endpoint and the health probe are unreachable. Off by default:
	// degraded sessions derive the role from the email alone and must be
	// an explicit product decision.
	AllowDegradedFallback bool

	// RoleKeywords maps substrings of the email local part to roles for
	// degraded sessions. Unmatched emails become RoleUser.
	RoleKeywords map[string]Role

	// RefreshMargin refreshes the access token when it expires within
	// this window. Defaults to 30s.
	RefreshMargin time.Duration
}

// CacheConfig tunes the staleness windows of the donation caches.
type CacheConfig struct {
	// DonationStaleAfter is the freshness window for single donations.
	// Defaults to 30s.
	DonationStaleAfter time.Duration

	// ListStaleAfter is the freshness window for donation lists.
	// Defaults to 30s.
	ListStaleAfter time.Duration

	// ListPollInterval is the background refresh period for lists that
	// contain payments still waiting on the gateway. Defaults to 30s.
	ListPollInterval time.Duration

	// StatusStaleAfter is the freshness window for payment-status
	// answers. Defaults to 5s.
	StatusStaleAfter time.Duration
}

// EventsConfig tunes the async event dispatcher.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig tunes metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Config is the full client configuration, grouped by concern.
type Config struct {
	Platform PlatformConfig
	Login    LoginConfig
	Cache    CacheConfig
	Events   EventsConfig
	Metrics  MetricsConfig
}

func defaultConfig() Config {
	return Config{
		Platform: PlatformConfig{
			APIPrefix:      "/api",
			HealthPath:     "/health",
			RequestTimeout: 15 * time.Second,
		},
		Login: LoginConfig{
			RoleKeywords: map[string]Role{
				"admin":         RoleAdmin,
				"administrator": RoleAdmin,
				"donor":         RoleDonor,
				"donante":       RoleDonor,
			},
			RefreshMargin: 30 * time.Second,
		},
		Cache: CacheConfig{
			DonationStaleAfter: 30 * time.Second,
			ListStaleAfter:     30 * time.Second,
			ListPollInterval:   30 * time.Second,
			StatusStaleAfter:   5 * time.Second,
		},
		Events: EventsConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Login.RoleKeywords != nil {
		out.Login.RoleKeywords = make(map[string]Role, len(cfg.Login.RoleKeywords))
		for k, v := range cfg.Login.RoleKeywords {
			out.Login.RoleKeywords[k] = v
		}
	}
	return out
}

// Validate checks cfg for contradictions before the client is built.
func (c Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return errors.New("Platform.BaseURL is required")
	}
	u, err := url.Parse(c.Platform.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("Platform.BaseURL must be an absolute URL")
	}
	if c.Platform.RequestTimeout < 0 {
		return errors.New("Platform.RequestTimeout cannot be negative")
	}
	if c.Login.RefreshMargin < 0 {
		return errors.New("Login.RefreshMargin cannot be negative")
	}
	if c.Cache.ListPollInterval < 0 || c.Cache.ListStaleAfter < 0 ||
		c.Cache.DonationStaleAfter < 0 || c.Cache.StatusStaleAfter < 0 {
		return errors.New("Cache durations cannot be negative")
	}
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events.BufferSize must be positive when events are enabled")
	}
	return nil
}
