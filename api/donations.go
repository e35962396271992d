package api

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// PaymentStatus is the gateway-facing lifecycle state of a donation.
type PaymentStatus string

const (
	StatusPending  PaymentStatus = "PENDING"
	StatusApproved PaymentStatus = "APPROVED"
	StatusDeclined PaymentStatus = "DECLINED"
	StatusExpired  PaymentStatus = "EXPIRED"
)

// Terminal reports whether the status can never change again.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusDeclined, StatusExpired:
		return true
	default:
		return false
	}
}

// Donation is the platform's donation record. Amount is in minor units.
type Donation struct {
	ID             string        `json:"id"`
	DonorName      string        `json:"donor_name"`
	DonorEmail     string        `json:"donor_email"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
	StatusCode     PaymentStatus `json:"status_code"`
	GatewayOrderID *string       `json:"gateway_order_id"`
	ReferenceCode  string        `json:"reference_code,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
}

// DonationInput creates or updates a donation.
type DonationInput struct {
	DonorName  string `json:"donor_name"`
	DonorEmail string `json:"donor_email"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// CreatePaymentRequest asks the platform to open a gateway checkout for a
// donation.
type CreatePaymentRequest struct {
	DonationID  string `json:"donation_id"`
	ReturnURL   string `json:"return_url,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// CreatePaymentResponse carries the checkout URL the donor must visit.
type CreatePaymentResponse struct {
	PaymentURL string `json:"payment_url"`
	OrderID    string `json:"order_id,omitempty"`
}

// PaymentStatusResult is the platform's answer to a status check.
type PaymentStatusResult struct {
	DonationID string        `json:"donation_id"`
	OrderID    string        `json:"order_id,omitempty"`
	Status     PaymentStatus `json:"status"`
	PaidAt     *time.Time    `json:"paid_at,omitempty"`
}

// ListDonations fetches donations, optionally filtered by query parameters.
func (c *Client) ListDonations(ctx context.Context, query url.Values) ([]Donation, error) {
	path := "/donations"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var out []Donation
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDonation fetches one donation by ID.
func (c *Client) GetDonation(ctx context.Context, id string) (*Donation, error) {
	var out Donation
	if err := c.doRequest(ctx, http.MethodGet, "/donations/"+url.PathEscape(id), nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDonation registers a new donation record.
func (c *Client) CreateDonation(ctx context.Context, input DonationInput) (*Donation, error) {
	var out Donation
	if err := c.doRequest(ctx, http.MethodPost, "/donations", input, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateDonation replaces the editable fields of a donation.
func (c *Client) UpdateDonation(ctx context.Context, id string, input DonationInput) (*Donation, error) {
	var out Donation
	if err := c.doRequest(ctx, http.MethodPut, "/donations/"+url.PathEscape(id), input, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDonation removes a donation record.
func (c *Client) DeleteDonation(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, "/donations/"+url.PathEscape(id), nil, nil, requestOptions{})
}

// CreatePayment opens a gateway checkout for the donation.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	var out CreatePaymentResponse
	if err := c.doRequest(ctx, http.MethodPost, "/payments/create", req, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentStatus asks the platform for the current gateway status. Exactly one
// of donationID or orderID may be empty.
func (c *Client) PaymentStatus(ctx context.Context, donationID, orderID string) (*PaymentStatusResult, error) {
	query := url.Values{}
	if donationID != "" {
		query.Set("donation_id", donationID)
	}
	if orderID != "" {
		query.Set("order_id", orderID)
	}

	var out PaymentStatusResult
	if err := c.doRequest(ctx, http.MethodGet, "/payments/status?"+query.Encode(), nil, &out, requestOptions{}); err != nil {
		return nil, err
	}
	return &out, nil
}
