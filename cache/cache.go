package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/khrizenriquez/mgen-client/internal/metrics"
)

// FetchFunc loads the authoritative value for a key.
type FetchFunc func(ctx context.Context) (any, error)

var errRequireFetch = errors.New("cache: no fetch function for key")

// ReduceFunc decides how a freshly fetched value combines with the cached
// one. It returns the value to store and whether the fetch result was
// accepted. When rejected the cached value stays and subscribers are not
// notified.
type ReduceFunc func(old, fetched any) (any, bool)

// SubscribeFunc receives the stored value after every accepted update.
type SubscribeFunc func(value any)

// Config configures a [Cache].
type Config struct {
	// DefaultPolicies seed the policy for new entries by kind. Kinds
	// without an entry fall back to a 30s staleness window, no polling.
	DefaultPolicies map[Kind]Policy

	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// Now overrides the clock in tests.
	Now func() time.Time
}

type entry struct {
	value     any
	hasValue  bool
	fetchedAt time.Time
	policy    Policy
	fetch     FetchFunc
	subs      map[int]SubscribeFunc
	nextSub   int
	stop      chan struct{}
	gen       uint64
}

// Cache is the keyed staleness cache. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*entry
	group    singleflight.Group
	defaults map[Kind]Policy
	reducers map[Kind]ReduceFunc
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	closed   bool
}

// New builds a cache from cfg.
func New(cfg Config) *Cache {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	defaults := make(map[Kind]Policy, len(cfg.DefaultPolicies))
	for kind, p := range cfg.DefaultPolicies {
		defaults[kind] = p.normalized()
	}

	return &Cache{
		entries:  make(map[Key]*entry),
		defaults: defaults,
		reducers: make(map[Kind]ReduceFunc),
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		now:      now,
	}
}

// SetReducer installs the merge rule for a kind. Must be called before
// values of that kind are cached.
func (c *Cache) SetReducer(kind Kind, fn ReduceFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reducers[kind] = fn
}

func (c *Cache) freshLocked(e *entry) bool {
	return e.hasValue && e.policy.StaleAfter > 0 && c.now().Sub(e.fetchedAt) < e.policy.StaleAfter
}

func (c *Cache) ensureEntryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if ok {
		return e
	}

	policy, ok := c.defaults[key.Kind]
	if !ok {
		policy = Policy{StaleAfter: defaultStaleAfter}.normalized()
	}
	e = &entry{
		policy: policy,
		subs:   make(map[int]SubscribeFunc),
	}
	c.entries[key] = e
	return e
}

// GetOrFetch returns the cached value when fresh, otherwise fetches through
// fetch. Concurrent callers for the same key share one in-flight fetch. The
// fetch function is remembered for background polling.
func (c *Cache) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc) (any, error) {
	c.mu.Lock()
	if c.closed {
		if e, ok := c.entries[key]; ok {
			if c.freshLocked(e) {
				value := e.value
				c.mu.Unlock()
				c.metrics.Inc(metrics.MetricCacheHit)
				return value, nil
			}
			if fetch == nil {
				fetch = e.fetch
			}
		}
		c.mu.Unlock()
		if fetch == nil {
			return nil, errRequireFetch
		}
		return fetch(ctx)
	}
	e := c.ensureEntryLocked(key)
	if fetch != nil {
		e.fetch = fetch
	} else {
		fetch = e.fetch
	}
	if fetch == nil {
		c.mu.Unlock()
		return nil, errRequireFetch
	}
	if c.freshLocked(e) {
		value := e.value
		c.mu.Unlock()
		c.metrics.Inc(metrics.MetricCacheHit)
		return value, nil
	}
	stale := e.hasValue
	gen := e.gen
	c.mu.Unlock()

	if stale {
		c.metrics.Inc(metrics.MetricCacheStaleRefresh)
	} else {
		c.metrics.Inc(metrics.MetricCacheMiss)
	}

	value, err, _ := c.group.Do(key.flightKey(), func() (any, error) {
		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return c.store(key, gen, fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// store applies the reducer and subscriber notifications for an accepted
// fetch result. Results that raced with an eviction are dropped.
func (c *Cache) store(key Key, gen uint64, fetched any) any {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return fetched
	}

	value := fetched
	if reducer, ok := c.reducers[key.Kind]; ok && e.hasValue {
		reduced, accepted := reducer(e.value, fetched)
		if !accepted {
			kept := e.value
			c.mu.Unlock()
			return kept
		}
		value = reduced
	}

	e.value = value
	e.hasValue = true
	e.fetchedAt = c.now()

	subs := make([]SubscribeFunc, 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(value)
	}
	return value
}

// Peek returns the cached value without fetching, fresh or stale.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// Invalidate marks the entry stale so the next read refetches. The cached
// value stays available to Peek.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.fetchedAt = time.Time{}
	}
}

// InvalidateKind marks every entry of the kind stale.
func (c *Cache) InvalidateKind(kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		if key.Kind == kind {
			e.fetchedAt = time.Time{}
		}
	}
}

// Evict removes the entry entirely, stopping its poller. In-flight fetches
// for the key resolve to the caller but are not stored.
func (c *Cache) Evict(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.gen++
	c.stopPollerLocked(e)
	delete(c.entries, key)
	c.mu.Unlock()

	c.metrics.Inc(metrics.MetricCacheEviction)
}

// Subscribe registers fn for updates to key and returns the unsubscribe
// function. Subscribing may start the entry's poller; unsubscribing the last
// subscriber stops it.
func (c *Cache) Subscribe(key Key, fn SubscribeFunc) func() {
	c.mu.Lock()
	e := c.ensureEntryLocked(key)
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	c.maybeStartPollerLocked(key, e)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			cur, ok := c.entries[key]
			if !ok || cur != e {
				return
			}
			delete(cur.subs, id)
			if len(cur.subs) == 0 {
				c.stopPollerLocked(cur)
			}
		})
	}
}

// SetPolicy replaces the entry's policy and starts or stops its poller to
// match.
func (c *Cache) SetPolicy(key Key, policy Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.ensureEntryLocked(key)
	e.policy = policy.normalized()
	if e.policy.PollEnabled {
		c.maybeStartPollerLocked(key, e)
	} else {
		c.stopPollerLocked(e)
	}
}

// Subscribers reports how many callbacks are registered for key.
func (c *Cache) Subscribers(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return len(e.subs)
	}
	return 0
}

// Polling reports whether a background poller is running for key.
func (c *Cache) Polling(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && e.stop != nil
}

// Close stops every poller. The cache keeps serving cached values but no
// longer stores new ones.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for _, e := range c.entries {
		e.gen++
		c.stopPollerLocked(e)
	}
}

func (c *Cache) maybeStartPollerLocked(key Key, e *entry) {
	if c.closed || e.stop != nil || !e.policy.PollEnabled || len(e.subs) == 0 {
		return
	}
	stop := make(chan struct{})
	e.stop = stop
	go c.runPoller(key, stop, e.policy.PollInterval)
}

func (c *Cache) stopPollerLocked(e *entry) {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

func (c *Cache) runPoller(key Key, stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.metrics.Inc(metrics.MetricPollTick)
			c.pollOnce(key)
		}
	}
}

func (c *Cache) pollOnce(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || e.fetch == nil {
		c.mu.Unlock()
		return
	}
	fetch := e.fetch
	gen := e.gen
	c.mu.Unlock()

	_, err, _ := c.group.Do(key.flightKey(), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), pollFetchTimeout)
		defer cancel()

		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return c.store(key, gen, fetched), nil
	})
	if err != nil {
		c.log.Debug().Str("kind", string(key.Kind)).Str("id", key.ID).Err(err).Msg("background refresh failed")
	}
}
