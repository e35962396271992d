package mgenclient

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ConfigFromEnv loads .env when present and builds a Config from MGEN_*
// variables, falling back to defaults for anything unset.
func ConfigFromEnv() Config {
	_ = godotenv.Load()

	cfg := defaultConfig()
	cfg.Platform.BaseURL = getenv("MGEN_BASE_URL", cfg.Platform.BaseURL)
	cfg.Platform.APIPrefix = getenv("MGEN_API_PREFIX", cfg.Platform.APIPrefix)
	cfg.Platform.HealthPath = getenv("MGEN_HEALTH_PATH", cfg.Platform.HealthPath)
	cfg.Platform.RequestTimeout = getduration("MGEN_REQUEST_TIMEOUT", cfg.Platform.RequestTimeout)

	cfg.Login.AllowDegradedFallback = getbool("MGEN_ALLOW_DEGRADED_LOGIN", cfg.Login.AllowDegradedFallback)
	cfg.Login.RefreshMargin = getduration("MGEN_REFRESH_MARGIN", cfg.Login.RefreshMargin)

	cfg.Cache.ListStaleAfter = getduration("MGEN_LIST_STALE_AFTER", cfg.Cache.ListStaleAfter)
	cfg.Cache.ListPollInterval = getduration("MGEN_LIST_POLL_INTERVAL", cfg.Cache.ListPollInterval)
	cfg.Cache.DonationStaleAfter = getduration("MGEN_DONATION_STALE_AFTER", cfg.Cache.DonationStaleAfter)
	cfg.Cache.StatusStaleAfter = getduration("MGEN_STATUS_STALE_AFTER", cfg.Cache.StatusStaleAfter)

	cfg.Events.Enabled = getbool("MGEN_EVENTS_ENABLED", cfg.Events.Enabled)
	cfg.Metrics.Enabled = getbool("MGEN_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = getbool("MGEN_METRICS_LATENCY", cfg.Metrics.EnableLatencyHistograms)

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
