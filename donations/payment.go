package donations

import (
	"context"
	"net/url"
	"time"

	"github.com/khrizenriquez/mgen-client/api"
	"github.com/khrizenriquez/mgen-client/cache"
	"github.com/khrizenriquez/mgen-client/internal/events"
	"github.com/khrizenriquez/mgen-client/internal/metrics"
)

// StartPayment opens a gateway checkout for the donation and, when a
// navigator is configured, sends the donor to the payment URL. The donation
// and every list are invalidated because the gateway order ID is now set.
func (s *Service) StartPayment(ctx context.Context, req api.CreatePaymentRequest) (*api.CreatePaymentResponse, error) {
	resp, err := s.api.CreatePayment(ctx, req)
	if err != nil {
		s.metrics.Inc(metrics.MetricPaymentCreateFailure)
		s.emit(ctx, events.Event{
			EventType:  "payment.create",
			DonationID: req.DonationID,
			Error:      err.Error(),
		})
		return nil, err
	}

	s.metrics.Inc(metrics.MetricPaymentCreated)
	s.emit(ctx, events.Event{
		EventType:  "payment.create",
		DonationID: req.DonationID,
		Success:    true,
		Metadata:   map[string]string{"order_id": resp.OrderID},
	})

	s.cache.Invalidate(donationKey(req.DonationID))
	s.cache.InvalidateKind(cache.KindDonationList)

	if s.navigator != nil && resp.PaymentURL != "" {
		if err := s.navigator.Navigate(resp.PaymentURL); err != nil {
			s.log.Warn().Str("donation_id", req.DonationID).Err(err).Msg("checkout navigation failed")
		}
	}
	return resp, nil
}

// CheckPaymentStatus asks the platform for the donation's gateway status,
// served from cache while fresh. At least one identifier is required;
// calling with neither is a usage error, not a remote failure. Every
// successful answer invalidates the donation it names and the list caches,
// so views re-read the donation as the gateway moves it along.
func (s *Service) CheckPaymentStatus(ctx context.Context, donationID, orderID string) (*api.PaymentStatusResult, error) {
	if donationID == "" && orderID == "" {
		return nil, ErrMissingPaymentIdentifier
	}

	s.metrics.Inc(metrics.MetricStatusCheck)
	value, err := s.cache.GetOrFetch(ctx, statusKey(donationID, orderID), func(ctx context.Context) (any, error) {
		return s.api.PaymentStatus(ctx, donationID, orderID)
	})
	if err != nil {
		return nil, err
	}

	result := value.(*api.PaymentStatusResult)
	if result.DonationID != "" {
		s.cache.Invalidate(donationKey(result.DonationID))
	}
	s.cache.InvalidateKind(cache.KindDonationList)

	if result.Status.Terminal() {
		s.settle(ctx, result)
	}
	return result, nil
}

// WatchPayment polls the payment status every interval until it settles or
// ctx ends. Each observed status, including the final one, is passed to
// onUpdate when non-nil. The cache is bypassed between ticks so each poll
// hits the platform.
func (s *Service) WatchPayment(ctx context.Context, donationID, orderID string, interval time.Duration, onUpdate func(api.PaymentStatusResult)) (*api.PaymentStatusResult, error) {
	if donationID == "" && orderID == "" {
		return nil, ErrMissingPaymentIdentifier
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	key := statusKey(donationID, orderID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.cache.Invalidate(key)
		result, err := s.CheckPaymentStatus(ctx, donationID, orderID)
		if err == nil {
			if onUpdate != nil {
				onUpdate(*result)
			}
			if result.Status.Terminal() {
				return result, nil
			}
		} else if !api.IsNetworkError(err) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ResumeFromGatewayReturn handles the donor landing back on the return URL:
// caches for the order are dropped and the status is fetched once so the
// caller can render the outcome immediately.
func (s *Service) ResumeFromGatewayReturn(ctx context.Context, donationID, orderID string) (*api.PaymentStatusResult, error) {
	if donationID == "" && orderID == "" {
		return nil, ErrMissingPaymentIdentifier
	}

	s.cache.Invalidate(statusKey(donationID, orderID))
	if donationID != "" {
		s.cache.Invalidate(donationKey(donationID))
	}
	s.cache.InvalidateKind(cache.KindDonationList)

	return s.CheckPaymentStatus(ctx, donationID, orderID)
}

// ResumeFromGatewayQuery resolves the identifiers the gateway appends to the
// return redirect and resumes the status check. Gateways differ on naming,
// so both the platform's snake_case parameters and the gateway's camelCase
// transactionId are accepted.
func (s *Service) ResumeFromGatewayQuery(ctx context.Context, params url.Values) (*api.PaymentStatusResult, error) {
	donationID := params.Get("donation_id")
	orderID := params.Get("order_id")
	if orderID == "" {
		orderID = params.Get("transactionId")
	}
	return s.ResumeFromGatewayReturn(ctx, donationID, orderID)
}

// settle announces a terminal outcome exactly once per payment, however many
// times callers keep re-reading the settled status.
func (s *Service) settle(ctx context.Context, result *api.PaymentStatusResult) {
	s.settledMu.Lock()
	key := result.DonationID + "\x00" + result.OrderID
	if s.settled[key] {
		s.settledMu.Unlock()
		return
	}
	s.settled[key] = true
	s.settledMu.Unlock()

	s.emit(ctx, events.Event{
		EventType:  "payment.settled",
		DonationID: result.DonationID,
		Success:    result.Status == api.StatusApproved,
		Metadata:   map[string]string{"status": string(result.Status)},
	})
}
