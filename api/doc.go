// Package api implements the HTTP transport against the donation platform
// REST API: request construction, bearer authentication, the single retry
// after a coalesced token refresh on 401 responses, and classification of
// transport failures as network unavailability.
//
// # Architecture boundaries
//
// This package owns wire DTOs and HTTP concerns only. Session state,
// credential persistence and caching live in the packages above it.
//
// # What this package must NOT do
//
//   - Store tokens. It reads them through [TokenSource] on every request.
//   - Decide refresh policy. A 401 triggers exactly one call into the
//     configured [Refresher] and one retry, nothing more.
//   - Import mgenclient or any sibling package.
package api
