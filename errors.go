package mgenclient

import (
	"errors"

	"github.com/khrizenriquez/mgen-client/api"
)

var (
	// ErrNotAuthenticated means the operation needs an active session and
	// none exists.
	ErrNotAuthenticated = errors.New("mgenclient: not authenticated")

	// ErrInvalidCredentials means the platform rejected the email or
	// password.
	ErrInvalidCredentials = errors.New("mgenclient: invalid credentials")

	// ErrNoRefreshToken means a refresh was requested with no stored
	// refresh token.
	ErrNoRefreshToken = errors.New("mgenclient: no refresh token")

	// ErrSessionExpired means a token refresh failed and the local session
	// has been cleared.
	ErrSessionExpired = errors.New("mgenclient: session expired")

	// ErrDegradedSession means the operation needs real platform tokens
	// and the current session was established offline.
	ErrDegradedSession = errors.New("mgenclient: session is degraded")
)

// ErrNetworkUnavailable re-exports the transport sentinel so callers do not
// need to import package api for the common reachability check.
var ErrNetworkUnavailable = api.ErrNetworkUnavailable

// IsNetworkError reports whether err represents a transport failure rather
// than an answer from the platform.
func IsNetworkError(err error) bool { return api.IsNetworkError(err) }
