package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

type staticTokens struct{ token string }

func (s *staticTokens) AccessToken() string { return s.token }

type fakeRefresher struct {
	tokens *staticTokens
	next   string
	calls  atomic.Int32
	fail   bool
}

func (f *fakeRefresher) RefreshSession(context.Context) error {
	f.calls.Add(1)
	if f.fail {
		return &RemoteError{StatusCode: http.StatusUnauthorized, Message: "refresh token revoked"}
	}
	f.tokens.token = f.next
	return nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL: srv.URL,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, srv
}

func TestLoginSuccess(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send an Authorization header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","user":{"id":"u1","email":"a@b.c","role":"donor"}}`))
	}))

	resp, err := client.Login(context.Background(), Credentials{Email: "a@b.c", Password: "secret"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken != "at-1" || resp.RefreshToken != "rt-1" {
		t.Errorf("unexpected token pair %+v", resp.TokenPair)
	}
	if resp.User == nil || resp.User.Role != "donor" {
		t.Errorf("unexpected user %+v", resp.User)
	}
}

func TestUnauthorizedRetriesOnceAfterRefresh(t *testing.T) {
	tokens := &staticTokens{token: "stale"}
	refresher := &fakeRefresher{tokens: tokens, next: "fresh"}

	var hits atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") == "Bearer fresh" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"u1","email":"a@b.c","role":"donor"}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	client.SetTokenSource(tokens)
	client.SetRefresher(refresher)

	profile, err := client.Me(context.Background())
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if profile.ID != "u1" {
		t.Errorf("unexpected profile %+v", profile)
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresher called %d times, want 1", got)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hit %d times, want 2", got)
	}
}

func TestUnauthorizedGivesUpWhenRefreshFails(t *testing.T) {
	tokens := &staticTokens{token: "stale"}
	refresher := &fakeRefresher{tokens: tokens, fail: true}

	var hits atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	client.SetTokenSource(tokens)
	client.SetRefresher(refresher)

	_, err := client.Me(context.Background())
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("want 401 RemoteError, got %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1 (no retry without new tokens)", got)
	}
}

func TestAuthEndpointsNeverRetry(t *testing.T) {
	tokens := &staticTokens{token: "stale"}
	refresher := &fakeRefresher{tokens: tokens, next: "fresh"}

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	client.SetTokenSource(tokens)
	client.SetRefresher(refresher)

	_, err := client.Refresh(context.Background(), "rt-revoked")
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("want 401 RemoteError, got %v", err)
	}
	if got := refresher.calls.Load(); got != 0 {
		t.Errorf("refresher called %d times on an auth endpoint, want 0", got)
	}
}

func TestRemoteErrorMessageExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error":"donation not found"}`, "donation not found"},
		{"message field", `{"message":"invalid amount"}`, "invalid amount"},
		{"detail field", `{"detail":"missing currency"}`, "missing currency"},
		{"plain text", `gateway exploded`, "gateway exploded"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tc.body))
			}))

			_, err := client.GetDonation(context.Background(), "d1")
			var re *RemoteError
			if !errors.As(err, &re) {
				t.Fatalf("want RemoteError, got %v", err)
			}
			if re.Message != tc.want {
				t.Errorf("message = %q, want %q", re.Message, tc.want)
			}
		})
	}
}

func TestNetworkFailureClassifiedAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	srv.Close()

	_, err = client.GetDonation(context.Background(), "d1")
	if !IsNetworkError(err) {
		t.Fatalf("want network error, got %v", err)
	}

	if err := client.Ping(context.Background()); !IsNetworkError(err) {
		t.Fatalf("Ping: want network error, got %v", err)
	}
}

func TestPingToleratesNon2xx(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping should treat any response as reachable, got %v", err)
	}
}

func TestPaymentStatusQuery(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("order_id"); got != "ord-9" {
			t.Errorf("order_id = %q, want ord-9", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"donation_id":"d1","order_id":"ord-9","status":"APPROVED"}`))
	}))
	client.SetTokenSource(&staticTokens{token: "at"})

	result, err := client.PaymentStatus(context.Background(), "", "ord-9")
	if err != nil {
		t.Fatalf("PaymentStatus: %v", err)
	}
	if result.Status != StatusApproved {
		t.Errorf("status = %q, want APPROVED", result.Status)
	}
	if !result.Status.Terminal() {
		t.Error("APPROVED must be terminal")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []PaymentStatus{StatusApproved, StatusDeclined, StatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	if StatusPending.Terminal() {
		t.Error("PENDING must not be terminal")
	}
}
