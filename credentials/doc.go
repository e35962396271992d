// Package credentials persists the three session slots (access token,
// refresh token, profile) behind a single [Store] interface, with in-memory,
// file-backed and Redis-backed implementations.
//
// # Architecture boundaries
//
// This package owns durable session state only. It does not interpret
// tokens, talk to the platform, or decide when a stored record is usable.
// The session manager above it applies the "profile without both tokens is
// discarded" rule on load.
//
// # What this package must NOT do
//
//   - Validate or decode tokens.
//   - Perform HTTP calls.
//   - Import mgenclient or any sibling package.
package credentials
