package api

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrNetworkUnavailable wraps transport-level failures: DNS errors,
// connection refusals, timeouts. Callers use it to distinguish "server said
// no" from "server never answered".
var ErrNetworkUnavailable = errors.New("api: network unavailable")

// RemoteError is a non-2xx response from the platform.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: remote error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
}

// IsStatus reports whether err is a [RemoteError] with the given status code.
func IsStatus(err error, code int) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == code
}

// IsNetworkError reports whether err represents a transport failure rather
// than a response from the platform.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetworkUnavailable) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
