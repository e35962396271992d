package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, clock *fakeClock) *Cache {
	t.Helper()

	cfg := Config{Logger: zerolog.Nop()}
	if clock != nil {
		cfg.Now = clock.Now
	}
	c := New(cfg)
	t.Cleanup(c.Close)
	return c
}

func countingFetch(value any) (*atomic.Int32, FetchFunc) {
	var calls atomic.Int32
	return &calls, func(context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestGetOrFetchCachesWhileFresh(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestCache(t, clock)
	key := Key{Kind: KindDonation, ID: "d1"}

	calls, fetch := countingFetch("v1")
	for i := 0; i < 3; i++ {
		got, err := c.GetOrFetch(context.Background(), key, fetch)
		if err != nil {
			t.Fatalf("GetOrFetch: %v", err)
		}
		if got != "v1" {
			t.Fatalf("got %v, want v1", got)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("fetch called %d times, want 1", n)
	}
}

func TestGetOrFetchRefetchesWhenStale(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestCache(t, clock)
	key := Key{Kind: KindDonation, ID: "d1"}

	calls, fetch := countingFetch("v1")
	if _, err := c.GetOrFetch(context.Background(), key, fetch); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}

	clock.Advance(defaultStaleAfter + time.Second)
	if _, err := c.GetOrFetch(context.Background(), key, fetch); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("fetch called %d times, want 2", n)
	}
}

func TestConcurrentCallersShareOneFetch(t *testing.T) {
	c := newTestCache(t, nil)
	key := Key{Kind: KindDonationList}

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "list", nil
	}

	const workers = 16
	var wg sync.WaitGroup
	started := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			got, err := c.GetOrFetch(context.Background(), key, fetch)
			if err != nil {
				t.Errorf("GetOrFetch: %v", err)
				return
			}
			if got != "list" {
				t.Errorf("got %v, want list", got)
			}
		}()
	}
	for i := 0; i < workers; i++ {
		<-started
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("fetch called %d times, want 1", n)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := newTestCache(t, nil)
	key := Key{Kind: KindDonation, ID: "d1"}

	calls, fetch := countingFetch("v1")
	if _, err := c.GetOrFetch(context.Background(), key, fetch); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}

	c.Invalidate(key)
	if _, err := c.GetOrFetch(context.Background(), key, fetch); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("fetch called %d times, want 2", n)
	}
}

func TestInvalidateKindTouchesOnlyThatKind(t *testing.T) {
	c := newTestCache(t, nil)
	donation := Key{Kind: KindDonation, ID: "d1"}
	list := Key{Kind: KindDonationList}

	dCalls, dFetch := countingFetch("d")
	lCalls, lFetch := countingFetch("l")
	_, _ = c.GetOrFetch(context.Background(), donation, dFetch)
	_, _ = c.GetOrFetch(context.Background(), list, lFetch)

	c.InvalidateKind(KindDonationList)
	_, _ = c.GetOrFetch(context.Background(), donation, dFetch)
	_, _ = c.GetOrFetch(context.Background(), list, lFetch)

	if n := dCalls.Load(); n != 1 {
		t.Errorf("donation fetch called %d times, want 1", n)
	}
	if n := lCalls.Load(); n != 2 {
		t.Errorf("list fetch called %d times, want 2", n)
	}
}

func TestFetchErrorKeepsStaleValue(t *testing.T) {
	c := newTestCache(t, nil)
	key := Key{Kind: KindDonation, ID: "d1"}

	_, fetch := countingFetch("v1")
	if _, err := c.GetOrFetch(context.Background(), key, fetch); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}

	c.Invalidate(key)
	boom := errors.New("gateway down")
	_, err := c.GetOrFetch(context.Background(), key, func(context.Context) (any, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	if got, ok := c.Peek(key); !ok || got != "v1" {
		t.Errorf("Peek = %v/%v, want v1/true", got, ok)
	}
}

func TestReducerCanRejectFetchResult(t *testing.T) {
	c := newTestCache(t, nil)
	key := Key{Kind: KindPaymentStatus, ID: "d1"}
	c.SetReducer(KindPaymentStatus, func(old, fetched any) (any, bool) {
		if fetched == "PENDING" && old != "PENDING" {
			return old, false
		}
		return fetched, true
	})

	notified := make(chan any, 4)
	unsub := c.Subscribe(key, func(v any) { notified <- v })
	defer unsub()

	_, _ = c.GetOrFetch(context.Background(), key, func(context.Context) (any, error) { return "APPROVED", nil })
	if v := <-notified; v != "APPROVED" {
		t.Fatalf("notified %v, want APPROVED", v)
	}

	c.Invalidate(key)
	got, err := c.GetOrFetch(context.Background(), key, func(context.Context) (any, error) { return "PENDING", nil })
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if got != "APPROVED" {
		t.Errorf("got %v, want cached APPROVED", got)
	}

	select {
	case v := <-notified:
		t.Errorf("rejected update notified subscribers with %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPollerLifecycle(t *testing.T) {
	c := newTestCache(t, nil)
	key := Key{Kind: KindDonationList}

	calls, fetch := countingFetch("list")
	if _, err := c.GetOrFetch(context.Background(), key, fetch); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}

	c.SetPolicy(key, Policy{StaleAfter: time.Hour, PollInterval: 10 * time.Millisecond, PollEnabled: true})
	if c.Polling(key) {
		t.Fatal("poller must not run without subscribers")
	}

	unsub := c.Subscribe(key, func(any) {})
	if !c.Polling(key) {
		t.Fatal("poller must start once a subscriber exists")
	}

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("poller made %d fetches, want at least 3", calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	unsub()
	if c.Polling(key) {
		t.Fatal("poller must stop when the last subscriber leaves")
	}
}

func TestEvictDropsLateResult(t *testing.T) {
	c := newTestCache(t, nil)
	key := Key{Kind: KindDonation, ID: "d1"}

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.GetOrFetch(context.Background(), key, func(context.Context) (any, error) {
			<-release
			return "late", nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	c.Evict(key)
	close(release)
	<-done

	if _, ok := c.Peek(key); ok {
		t.Error("late fetch result stored after eviction")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	c := newTestCache(t, nil)
	key := Key{Kind: KindDonation, ID: "d1"}

	unsub := c.Subscribe(key, func(any) {})
	other := c.Subscribe(key, func(any) {})

	unsub()
	unsub()
	if got := c.Subscribers(key); got != 1 {
		t.Errorf("subscribers = %d, want 1", got)
	}
	other()
}

func TestClosedCacheServesFreshValues(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := newTestCache(t, clock)
	key := Key{Kind: KindDonation, ID: "d1"}

	calls, fetch := countingFetch("v1")
	if _, err := c.GetOrFetch(context.Background(), key, fetch); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	c.Close()

	got, err := c.GetOrFetch(context.Background(), key, fetch)
	if err != nil {
		t.Fatalf("GetOrFetch after Close: %v", err)
	}
	if got != "v1" {
		t.Errorf("value = %v, want the cached v1", got)
	}
	if calls.Load() != 1 {
		t.Errorf("fetch called %d times, want 1 (fresh hit after Close)", calls.Load())
	}

	// once the value goes stale the closed cache passes the fetch through
	// without storing
	clock.Advance(time.Minute)
	if _, err := c.GetOrFetch(context.Background(), key, fetch); err != nil {
		t.Fatalf("GetOrFetch stale after Close: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch called %d times, want 2 after staleness", calls.Load())
	}
}
