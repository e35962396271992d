// Package cache implements the keyed staleness cache behind the donation
// views: fresh values are served from memory, stale or missing values are
// fetched at most once regardless of how many callers ask, and entries with
// active subscribers can be polled in the background.
//
// # Architecture boundaries
//
// This package is domain-blind. Values are opaque, keys are (kind, id)
// pairs, and the per-kind reducer hook is how the layer above enforces rules
// like "a settled payment never goes back to pending".
//
// # What this package must NOT do
//
//   - Perform HTTP calls itself. Fetching is always through the caller's
//     [FetchFunc].
//   - Interpret cached values beyond passing them to the reducer.
//   - Import mgenclient or any sibling package.
package cache
