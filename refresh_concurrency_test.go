package mgenclient

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"
)

// Concurrent refreshes must collapse into a single token exchange: the
// transport's 401 retries and manual refresh calls all share one flight.
func TestConcurrentRefreshesCoalesce(t *testing.T) {
	client, backend := newSessionTestClient(t)
	access := signedToken(t, "u1", "ana@example.org", "donor", time.Hour)
	fresh := signedToken(t, "u1", "ana@example.org", "donor", 2*time.Hour)

	backend.Set(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			time.Sleep(50 * time.Millisecond)
			writeResponse(t, w, map[string]string{"access_token": fresh, "refresh_token": "rt-2"})
			return
		}
		loginOK(t, access, "rt-1")(w, r)
	})

	if _, err := client.Session().Login(context.Background(), "ana@example.org", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- client.Session().RefreshSession(context.Background())
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("RefreshSession: %v", err)
		}
	}
	if n := backend.refreshes.Load(); n != 1 {
		t.Errorf("refresh endpoint hit %d times, want exactly 1", n)
	}
	if got := client.Session().AccessToken(); got != fresh {
		t.Error("access token was not rotated")
	}
}

// A 401 on a donation request must trigger one coalesced refresh and one
// retry even when many requests race into the same expired token.
func TestUnauthorizedRetryUsesSharedRefresh(t *testing.T) {
	client, backend := newSessionTestClient(t)
	stale := signedToken(t, "u1", "ana@example.org", "donor", time.Hour)
	fresh := signedToken(t, "u2", "ana@example.org", "donor", 2*time.Hour)

	backend.Set(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			time.Sleep(30 * time.Millisecond)
			writeResponse(t, w, map[string]string{"access_token": fresh, "refresh_token": "rt-2"})
		case "/api/donations":
			if r.Header.Get("Authorization") != "Bearer "+fresh {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeResponse(t, w, []map[string]any{})
		default:
			loginOK(t, stale, "rt-1")(w, r)
		}
	})

	if _, err := client.Session().Login(context.Background(), "ana@example.org", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.API().ListDonations(context.Background(), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("ListDonations: %v", err)
		}
	}
	if n := backend.refreshes.Load(); n != 1 {
		t.Errorf("refresh endpoint hit %d times, want exactly 1", n)
	}
}
