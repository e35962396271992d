package donations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/khrizenriquez/mgen-client/api"
	"github.com/khrizenriquez/mgen-client/cache"
	"github.com/khrizenriquez/mgen-client/internal/events"
	"github.com/khrizenriquez/mgen-client/internal/metrics"
)

// ErrMissingPaymentIdentifier is returned by CheckPaymentStatus when neither
// a donation ID nor a gateway order ID was supplied. It marks a programming
// error, not a remote failure.
var ErrMissingPaymentIdentifier = errors.New("donations: donation or order identifier required")

// Navigator opens the gateway checkout page for the donor. Implementations
// range from exec-ing a browser to pushing a URL into a UI layer.
type Navigator interface {
	Navigate(url string) error
}

// NavigatorFunc adapts a function to the [Navigator] interface.
type NavigatorFunc func(url string) error

func (f NavigatorFunc) Navigate(url string) error { return f(url) }

// Config configures the reconciliation service.
type Config struct {
	API       *api.Client
	Cache     *cache.Cache
	Navigator Navigator

	// ListPollInterval is the background refresh period for donation
	// lists that contain payments still waiting on the gateway.
	// Defaults to 30s.
	ListPollInterval time.Duration

	// ListStaleAfter is the freshness window for cached lists.
	// Defaults to 30s.
	ListStaleAfter time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	Events  *events.Dispatcher
}

// Service reconciles donation state between the platform and local caches.
type Service struct {
	api       *api.Client
	cache     *cache.Cache
	navigator Navigator
	pollEvery time.Duration
	staleFor  time.Duration
	log       zerolog.Logger
	metrics   *metrics.Metrics
	events    *events.Dispatcher

	settledMu sync.Mutex
	settled   map[string]bool
}

// NewService validates cfg, installs the merge rules on the cache, and
// returns the service.
func NewService(cfg Config) (*Service, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("donations: api client is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("donations: cache is required")
	}
	if cfg.ListPollInterval <= 0 {
		cfg.ListPollInterval = 30 * time.Second
	}
	if cfg.ListStaleAfter <= 0 {
		cfg.ListStaleAfter = 30 * time.Second
	}

	s := &Service{
		api:       cfg.API,
		cache:     cfg.Cache,
		navigator: cfg.Navigator,
		pollEvery: cfg.ListPollInterval,
		staleFor:  cfg.ListStaleAfter,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		events:    cfg.Events,
		settled:   make(map[string]bool),
	}
	s.cache.SetReducer(cache.KindDonation, s.reduceDonation)
	s.cache.SetReducer(cache.KindDonationList, s.reduceDonationList)
	s.cache.SetReducer(cache.KindPaymentStatus, s.reduceStatus)
	return s, nil
}

func donationKey(id string) cache.Key {
	return cache.Key{Kind: cache.KindDonation, ID: id}
}

func listKey(query url.Values) cache.Key {
	return cache.Key{Kind: cache.KindDonationList, ID: query.Encode()}
}

func statusKey(donationID, orderID string) cache.Key {
	id := donationID
	if id == "" {
		id = "order:" + orderID
	}
	return cache.Key{Kind: cache.KindPaymentStatus, ID: id}
}

// List returns donations matching query, served from cache while fresh.
// Lists containing a pending payment that already has a gateway order keep a
// background poller alive for their subscribers.
func (s *Service) List(ctx context.Context, query url.Values) ([]api.Donation, error) {
	key := listKey(query)
	value, err := s.cache.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		list, err := s.api.ListDonations(ctx, query)
		if err != nil {
			return nil, err
		}
		s.adjustListPolling(key, list)
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]api.Donation), nil
}

// adjustListPolling enables the list's poller exactly while it contains a
// donation that is PENDING and already handed to the gateway.
func (s *Service) adjustListPolling(key cache.Key, list []api.Donation) {
	awaiting := false
	for _, d := range list {
		if d.StatusCode == api.StatusPending && d.GatewayOrderID != nil {
			awaiting = true
			break
		}
	}
	s.cache.SetPolicy(key, cache.Policy{
		StaleAfter:   s.staleFor,
		PollInterval: s.pollEvery,
		PollEnabled:  awaiting,
	})
}

// Get returns one donation, served from cache while fresh.
func (s *Service) Get(ctx context.Context, id string) (*api.Donation, error) {
	value, err := s.cache.GetOrFetch(ctx, donationKey(id), func(ctx context.Context) (any, error) {
		return s.api.GetDonation(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return value.(*api.Donation), nil
}

// Create registers a donation and invalidates every cached list.
func (s *Service) Create(ctx context.Context, input api.DonationInput) (*api.Donation, error) {
	donation, err := s.api.CreateDonation(ctx, input)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateKind(cache.KindDonationList)
	return donation, nil
}

// Update edits a donation and invalidates its cached record plus every list.
func (s *Service) Update(ctx context.Context, id string, input api.DonationInput) (*api.Donation, error) {
	donation, err := s.api.UpdateDonation(ctx, id, input)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(donationKey(id))
	s.cache.InvalidateKind(cache.KindDonationList)
	return donation, nil
}

// Delete removes a donation, evicts its cached record and payment status,
// and invalidates every list.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.api.DeleteDonation(ctx, id); err != nil {
		return err
	}
	s.cache.Evict(donationKey(id))
	s.cache.Evict(statusKey(id, ""))
	s.cache.InvalidateKind(cache.KindDonationList)
	return nil
}

// SubscribeList registers fn for updates to the list identified by query.
// The returned function unsubscribes.
func (s *Service) SubscribeList(query url.Values, fn func([]api.Donation)) func() {
	return s.cache.Subscribe(listKey(query), func(v any) {
		fn(v.([]api.Donation))
	})
}

// SubscribeDonation registers fn for updates to one donation.
func (s *Service) SubscribeDonation(id string, fn func(*api.Donation)) func() {
	return s.cache.Subscribe(donationKey(id), func(v any) {
		fn(v.(*api.Donation))
	})
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	s.events.Emit(ctx, event)
}
