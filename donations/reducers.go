package donations

import (
	"context"

	"github.com/khrizenriquez/mgen-client/api"
	"github.com/khrizenriquez/mgen-client/internal/events"
	"github.com/khrizenriquez/mgen-client/internal/metrics"
)

// reduceDonation rejects fetches that would move a settled donation back to
// PENDING. Gateway callbacks and status polls can race; the terminal answer
// always wins.
func (s *Service) reduceDonation(old, fetched any) (any, bool) {
	prev, ok := old.(*api.Donation)
	if !ok {
		return fetched, true
	}
	next, ok := fetched.(*api.Donation)
	if !ok {
		return old, false
	}

	if prev.StatusCode.Terminal() && next.StatusCode == api.StatusPending {
		s.discardStale(prev.ID, string(prev.StatusCode))
		return old, false
	}
	return fetched, true
}

// reduceDonationList merges element-wise: fetched rows replace cached rows
// except where a cached row already settled and the fetched one is PENDING.
func (s *Service) reduceDonationList(old, fetched any) (any, bool) {
	prev, ok := old.([]api.Donation)
	if !ok {
		return fetched, true
	}
	next, ok := fetched.([]api.Donation)
	if !ok {
		return old, false
	}

	settled := make(map[string]api.Donation, len(prev))
	for _, d := range prev {
		if d.StatusCode.Terminal() {
			settled[d.ID] = d
		}
	}

	merged := make([]api.Donation, len(next))
	for i, d := range next {
		if kept, ok := settled[d.ID]; ok && d.StatusCode == api.StatusPending {
			s.discardStale(d.ID, string(kept.StatusCode))
			merged[i] = kept
			continue
		}
		merged[i] = d
	}
	return merged, true
}

func (s *Service) reduceStatus(old, fetched any) (any, bool) {
	prev, ok := old.(*api.PaymentStatusResult)
	if !ok {
		return fetched, true
	}
	next, ok := fetched.(*api.PaymentStatusResult)
	if !ok {
		return old, false
	}

	if prev.Status.Terminal() && next.Status == api.StatusPending {
		s.discardStale(prev.DonationID, string(prev.Status))
		return old, false
	}
	return fetched, true
}

func (s *Service) discardStale(donationID, kept string) {
	s.metrics.Inc(metrics.MetricStaleStatusDiscarded)
	s.log.Debug().Str("donation_id", donationID).Str("kept_status", kept).
		Msg("discarded stale PENDING response for settled payment")
	s.emit(context.Background(), events.Event{
		EventType:  "payment.stale_status_discarded",
		DonationID: donationID,
		Success:    true,
		Metadata:   map[string]string{"kept_status": kept},
	})
}
