package mgenclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/khrizenriquez/mgen-client/credentials"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Platform.APIPrefix != "/api" || cfg.Platform.HealthPath != "/health" {
		t.Errorf("unexpected platform defaults %+v", cfg.Platform)
	}
	if cfg.Login.AllowDegradedFallback {
		t.Error("degraded fallback must default to off")
	}
	if cfg.Login.RoleKeywords["admin"] != RoleAdmin || cfg.Login.RoleKeywords["donante"] != RoleDonor {
		t.Errorf("unexpected role keywords %+v", cfg.Login.RoleKeywords)
	}
	if cfg.Cache.ListPollInterval != 30*time.Second {
		t.Errorf("list poll interval = %v, want 30s", cfg.Cache.ListPollInterval)
	}
}

func TestConfigValidate(t *testing.T) {
	base := defaultConfig()
	base.Platform.BaseURL = "https://donations.example.org"
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base URL", func(c *Config) { c.Platform.BaseURL = "" }},
		{"relative base URL", func(c *Config) { c.Platform.BaseURL = "donations.example.org" }},
		{"negative timeout", func(c *Config) { c.Platform.RequestTimeout = -time.Second }},
		{"negative refresh margin", func(c *Config) { c.Login.RefreshMargin = -time.Second }},
		{"negative cache window", func(c *Config) { c.Cache.ListStaleAfter = -time.Second }},
		{"events without buffer", func(c *Config) { c.Events.Enabled = true; c.Events.BufferSize = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := cloneConfig(base)
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestCloneConfigIsolatesRoleKeywords(t *testing.T) {
	cfg := defaultConfig()
	cloned := cloneConfig(cfg)
	cloned.Login.RoleKeywords["tesorero"] = RoleAdmin

	if _, ok := cfg.Login.RoleKeywords["tesorero"]; ok {
		t.Error("clone shares the role keyword map with the original")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MGEN_BASE_URL", "https://donations.example.org")
	t.Setenv("MGEN_ALLOW_DEGRADED_LOGIN", "true")
	t.Setenv("MGEN_LIST_POLL_INTERVAL", "10s")
	t.Setenv("MGEN_METRICS_ENABLED", "1")
	t.Setenv("MGEN_REQUEST_TIMEOUT", "not-a-duration")

	cfg := ConfigFromEnv()
	if cfg.Platform.BaseURL != "https://donations.example.org" {
		t.Errorf("base URL = %q", cfg.Platform.BaseURL)
	}
	if !cfg.Login.AllowDegradedFallback {
		t.Error("degraded fallback flag not read")
	}
	if cfg.Cache.ListPollInterval != 10*time.Second {
		t.Errorf("poll interval = %v, want 10s", cfg.Cache.ListPollInterval)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics flag not read")
	}
	if cfg.Platform.RequestTimeout != 15*time.Second {
		t.Errorf("unparseable duration must keep the default, got %v", cfg.Platform.RequestTimeout)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithBaseURL("https://donations.example.org")
	client, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(client.Close)

	if _, err := b.Build(); err == nil {
		t.Error("second Build on the same builder must fail")
	}
}

func TestBuilderRequiresBaseURL(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Error("Build without a base URL must fail")
	}
}

func TestBuilderKeepsEventSinkAcrossWithConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.Platform.BaseURL = "https://donations.example.org"

	sink := NewChannelEventSink(4)
	client, err := New().
		WithEventSink(sink).
		WithConfig(cfg).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(client.Close)

	if client.events == nil {
		t.Fatal("WithConfig after WithEventSink disabled event dispatch")
	}
	client.events.Emit(context.Background(), Event{EventType: "session.login"})

	select {
	case got := <-sink.Events():
		if got.EventType != "session.login" {
			t.Errorf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("sink never received the event")
	}
}

func TestBuilderWithRedisPersistsSessions(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	client, err := New().
		WithBaseURL("https://donations.example.org").
		WithRedis(rc).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(client.Close)

	store, err := credentials.NewRedisStore(rc, "")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	rec := credentials.Record{AccessToken: "at-1", RefreshToken: "rt-1", UserID: "u1", Email: "ana@example.org", Role: "donor"}
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sess, err := client.Session().Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if sess == nil || sess.UserID != "u1" {
		t.Fatalf("session not restored through the redis store: %+v", sess)
	}
}
