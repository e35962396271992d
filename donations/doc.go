// Package donations is the reconciliation layer between the platform API and
// the cached views an application renders: donation CRUD with precise cache
// invalidation, gateway checkout creation, payment-status checks, and the
// rule that a settled payment can never be dragged back to pending by a late
// gateway response.
//
// # Architecture boundaries
//
// This package decides WHAT is cached and how updates merge. The mechanics
// of staleness, deduplication and polling belong to package cache; the wire
// format belongs to package api.
//
// # What this package must NOT do
//
//   - Touch tokens or session state.
//   - Open checkout pages itself. Navigation goes through the injected
//     [Navigator].
package donations
