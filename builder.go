package mgenclient

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/khrizenriquez/mgen-client/api"
	"github.com/khrizenriquez/mgen-client/cache"
	"github.com/khrizenriquez/mgen-client/credentials"
	"github.com/khrizenriquez/mgen-client/donations"
	"github.com/khrizenriquez/mgen-client/internal/events"
	"github.com/khrizenriquez/mgen-client/internal/metrics"
)

// Builder assembles a [Client]. Configure it during initialization and call
// Build exactly once.
type Builder struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
	loggerSet  bool
	store      credentials.Store
	sink       EventSink
	navigator  donations.Navigator
	built      bool
}

// New returns a builder seeded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets the platform origin.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.Platform.BaseURL = baseURL
	return b
}

// WithHTTPClient overrides the transport's HTTP client.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.loggerSet = true
	return b
}

// WithCredentialsStore sets where the session persists. Defaults to an
// in-memory store.
func (b *Builder) WithCredentialsStore(store credentials.Store) *Builder {
	b.store = store
	return b
}

// WithRedis persists the session in Redis under the default key. Use
// WithCredentialsStore for a custom key or a different backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	if client != nil {
		b.store, _ = credentials.NewRedisStore(client, "")
	}
	return b
}

// WithEventSink enables event dispatch into sink.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	b.config.Events.Enabled = true
	return b
}

// WithNavigator sets how donors reach the gateway checkout page.
func (b *Builder) WithNavigator(nav donations.Navigator) *Builder {
	b.navigator = nav
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the request-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithDegradedFallback opts in to offline sessions when the platform is
// unreachable at login.
func (b *Builder) WithDegradedFallback(enabled bool) *Builder {
	b.config.Login.AllowDegradedFallback = enabled
	return b
}

// Build validates the configuration and assembles the client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.sink != nil && !cfg.Events.Enabled {
		// a sink implies dispatch even when a later WithConfig replaced
		// the flag
		cfg.Events.Enabled = true
		if cfg.Events.BufferSize <= 0 {
			cfg.Events.BufferSize = defaultConfig().Events.BufferSize
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if !b.loggerSet {
		logger = zerolog.Nop()
	}

	store := b.store
	if store == nil {
		store = credentials.NewMemoryStore()
	}

	m := metrics.New(metrics.Config{
		Enabled:       cfg.Metrics.Enabled,
		EnableLatency: cfg.Metrics.EnableLatencyHistograms,
	})

	ev := events.NewDispatcher(events.Config{
		Enabled:       cfg.Events.Enabled,
		Buffer:        cfg.Events.BufferSize,
		BlockWhenFull: !cfg.Events.DropIfFull,
	}, b.sink)

	httpClient := b.httpClient
	if httpClient == nil && cfg.Platform.RequestTimeout > 0 {
		httpClient = &http.Client{Timeout: cfg.Platform.RequestTimeout}
	}

	apiClient, err := api.NewClient(api.Config{
		BaseURL:    cfg.Platform.BaseURL,
		APIPrefix:  cfg.Platform.APIPrefix,
		HealthPath: cfg.Platform.HealthPath,
		HTTPClient: httpClient,
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		return nil, err
	}

	session := newSessionManager(apiClient, store, cfg, logger, m, ev)
	apiClient.SetTokenSource(session)
	apiClient.SetRefresher(session)

	donationCache := cache.New(cache.Config{
		DefaultPolicies: map[cache.Kind]cache.Policy{
			cache.KindDonation:      {StaleAfter: cfg.Cache.DonationStaleAfter},
			cache.KindDonationList:  {StaleAfter: cfg.Cache.ListStaleAfter, PollInterval: cfg.Cache.ListPollInterval},
			cache.KindPaymentStatus: {StaleAfter: cfg.Cache.StatusStaleAfter},
		},
		Logger:  logger,
		Metrics: m,
	})

	donationSvc, err := donations.NewService(donations.Config{
		API:              apiClient,
		Cache:            donationCache,
		Navigator:        b.navigator,
		ListPollInterval: cfg.Cache.ListPollInterval,
		ListStaleAfter:   cfg.Cache.ListStaleAfter,
		Logger:           logger,
		Metrics:          m,
		Events:           ev,
	})
	if err != nil {
		return nil, err
	}

	b.built = true
	return &Client{
		cfg:       cfg,
		log:       logger,
		api:       apiClient,
		store:     store,
		cache:     donationCache,
		session:   session,
		donations: donationSvc,
		metrics:   m,
		events:    ev,
	}, nil
}
