package cache

import "time"

// Kind partitions the key space.
type Kind string

const (
	KindDonation      Kind = "donation"
	KindDonationList  Kind = "donations"
	KindPaymentStatus Kind = "payment_status"
)

// Key addresses one cached value. ID is empty for singleton kinds such as
// the unfiltered donation list.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) flightKey() string {
	return string(k.Kind) + "\x00" + k.ID
}

// Policy controls staleness and background polling for one entry.
type Policy struct {
	// StaleAfter is how long a fetched value counts as fresh. Zero means
	// every read refetches.
	StaleAfter time.Duration

	// PollInterval is the background refresh period. Ignored unless
	// PollEnabled.
	PollInterval time.Duration

	// PollEnabled allows a poller while the entry has subscribers. The
	// poller stops the moment the last subscriber leaves.
	PollEnabled bool
}

const (
	defaultStaleAfter   = 30 * time.Second
	defaultPollInterval = 30 * time.Second
	pollFetchTimeout    = 10 * time.Second
)

func (p Policy) normalized() Policy {
	if p.PollInterval <= 0 {
		p.PollInterval = defaultPollInterval
	}
	return p
}
