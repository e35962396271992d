package mgenclient

import (
	"github.com/rs/zerolog"

	"github.com/khrizenriquez/mgen-client/api"
	"github.com/khrizenriquez/mgen-client/cache"
	"github.com/khrizenriquez/mgen-client/credentials"
	"github.com/khrizenriquez/mgen-client/donations"
	"github.com/khrizenriquez/mgen-client/internal/events"
	"github.com/khrizenriquez/mgen-client/internal/metrics"
)

// Client bundles the session manager, the donation reconciliation service
// and their shared infrastructure. Build one through [New].
type Client struct {
	cfg       Config
	log       zerolog.Logger
	api       *api.Client
	store     credentials.Store
	cache     *cache.Cache
	session   *SessionManager
	donations *donations.Service
	metrics   *metrics.Metrics
	events    *events.Dispatcher
}

// Session returns the session manager.
func (c *Client) Session() *SessionManager { return c.session }

// Donations returns the reconciliation service.
func (c *Client) Donations() *donations.Service { return c.donations }

// API exposes the raw transport for endpoints the higher layers do not wrap.
func (c *Client) API() *api.Client { return c.api }

// MetricsSnapshot returns a point-in-time copy of all client metrics.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.SnapshotNow()
}

// EventsDropped reports events discarded under dispatcher backpressure.
func (c *Client) EventsDropped() uint64 {
	return c.events.Dropped()
}

// Close stops background pollers and drains the event dispatcher. The
// session itself is left untouched so a later client can Restore it.
func (c *Client) Close() {
	c.cache.Close()
	c.events.Close()
}
