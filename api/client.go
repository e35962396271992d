package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/khrizenriquez/mgen-client/internal/metrics"
)

// TokenSource supplies the current access token for authenticated requests.
// An empty string means no session is active.
type TokenSource interface {
	AccessToken() string
}

// Refresher exchanges the stored refresh token for a new pair. The client
// calls it at most once per request, after a 401.
type Refresher interface {
	RefreshSession(ctx context.Context) error
}

// Config configures the transport client.
type Config struct {
	// BaseURL is the platform origin, e.g. https://donations.example.org.
	BaseURL string

	// APIPrefix is prepended to every path. Defaults to /api.
	APIPrefix string

	// HealthPath is probed by Ping. Defaults to /health.
	HealthPath string

	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Client is the HTTP transport against the platform API. It is safe for
// concurrent use once configured.
type Client struct {
	baseURL    string
	apiPrefix  string
	healthPath string
	http       *http.Client
	log        zerolog.Logger
	metrics    *metrics.Metrics

	tokens    TokenSource
	refresher Refresher
}

// NewClient validates cfg and builds a transport client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: invalid base URL %q", cfg.BaseURL)
	}

	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiPrefix:  cfg.APIPrefix,
		healthPath: cfg.HealthPath,
		http:       cfg.HTTPClient,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// SetTokenSource wires the access-token supplier. Must be called before the
// first authenticated request.
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

// SetRefresher wires the 401 recovery hook.
func (c *Client) SetRefresher(r Refresher) { c.refresher = r }

// requestOptions tweak individual calls.
type requestOptions struct {
	// anonymous skips the Authorization header.
	anonymous bool
	// noRetry disables the 401 refresh-and-retry path. Set on auth
	// endpoints themselves so a failing refresh cannot recurse.
	noRetry bool
	// bearer overrides the token source for this call. Logout uses it to
	// send a token the caller already dropped from local state.
	bearer string
}

// Ping probes the health endpoint. It returns nil when the platform answered
// at all, even with a non-2xx status: reachability is the question, not
// correctness.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any, opts requestOptions) error {
	err := c.doOnce(ctx, method, path, body, out, opts)
	if err == nil || opts.noRetry || c.refresher == nil || !IsStatus(err, http.StatusUnauthorized) {
		return err
	}

	c.metrics.Inc(metrics.MetricUnauthorizedRetry)
	c.log.Debug().Str("path", path).Msg("retrying after token refresh")

	if refreshErr := c.refresher.RefreshSession(ctx); refreshErr != nil {
		return err
	}
	return c.doOnce(ctx, method, path, body, out, opts)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any, opts requestOptions) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+c.apiPrefix+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case opts.bearer != "":
		req.Header.Set("Authorization", "Bearer "+opts.bearer)
	case !opts.anonymous && c.tokens != nil:
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.Observe(metrics.MetricRequestLatency, time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.remoteError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *Client) remoteError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	message := ""
	if json.Unmarshal(data, &envelope) == nil {
		switch {
		case envelope.Message != "":
			message = envelope.Message
		case envelope.Error != "":
			message = envelope.Error
		case envelope.Detail != "":
			message = envelope.Detail
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(data))
	}

	return &RemoteError{StatusCode: resp.StatusCode, Message: message}
}
