// Package mgenclient is the client-side session and payment-reconciliation
// core for the mgen donation platform. It owns the authenticated session
// (login, registration, password reset, logout, token refresh, validation,
// and a degraded offline fallback) and wires the reconciliation layer that
// tracks donation and payment-status records against an eventually-consistent
// payment gateway.
//
// The package is designed for concurrent callers: Client methods are safe to
// use from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// mgenclient is the public surface. It exposes [Client], [Builder], [Config],
// [SessionManager], and value types (Session, Donation, MetricsSnapshot).
// The REST transport lives in api/, durable credential slots in credentials/,
// the keyed cache in cache/, the reconciliation service in donations/, and
// event dispatch under internal/events. None of them are reached for
// globally.
//
// # What this package must NOT do
//
//   - Validate or construct token signatures. Access tokens are decoded
//     without verification, purely to read expiry and profile claims.
//   - Render anything. Side effects toward the user (gateway navigation,
//     notifications) go through injected interfaces.
//   - Mutate cache entries or the session outside their single owners.
package mgenclient
