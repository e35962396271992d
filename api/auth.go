package api

import (
	"context"
	"net/http"
)

// Credentials carry a login attempt.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput carries a new-account request.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// TokenPair is the platform's token response.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Profile is the authenticated user as the platform reports it.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role"`
}

// LoginResponse bundles tokens with the optional inline profile some
// deployments return.
type LoginResponse struct {
	TokenPair
	User *Profile `json:"user,omitempty"`
}

// Login exchanges credentials for a token pair. Anonymous, never retried.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	var out LoginResponse
	err := c.doRequest(ctx, http.MethodPost, "/auth/login", creds, &out, requestOptions{anonymous: true, noRetry: true})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, input RegisterInput) (*Profile, error) {
	var out Profile
	err := c.doRequest(ctx, http.MethodPost, "/auth/register", input, &out, requestOptions{anonymous: true, noRetry: true})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetPassword requests a reset email for the address. The platform answers
// 200 whether or not the account exists.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.doRequest(ctx, http.MethodPost, "/auth/reset-password", body, nil, requestOptions{anonymous: true, noRetry: true})
}

// Refresh exchanges a refresh token for a fresh pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var out TokenPair
	err := c.doRequest(ctx, http.MethodPost, "/auth/refresh", body, &out, requestOptions{anonymous: true, noRetry: true})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout tells the platform to revoke the session server-side. The access
// token is passed explicitly because callers clear local state before the
// remote call.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.doRequest(ctx, http.MethodPost, "/auth/logout", nil, nil, requestOptions{noRetry: true, bearer: accessToken})
}

// Me fetches the authenticated profile.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	var out Profile
	err := c.doRequest(ctx, http.MethodGet, "/auth/me", nil, &out, requestOptions{})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
