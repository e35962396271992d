// Package events implements the asynchronous client-event channel: session
// transitions, degraded-mode fallbacks, payment lifecycle changes, and
// discarded out-of-order gateway responses are forwarded to a pluggable
// [Sink] without blocking the operation that produced them.
//
// # Architecture boundaries
//
// This package owns the event model and dispatch. It never decides which
// events exist: event types are plain strings chosen by the emitting
// component.
//
// # What this package must NOT do
//
//   - Perform network calls of its own.
//   - Import mgenclient or any sibling package.
package events
