// Package internal contains helpers private to authgate: secure random
// generation and the hashing used to derive device identifiers.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - keylock: in-process per-user mutual exclusion
//   - metrics: lock-free counters
//   - rate: fixed-window Redis request counters
//
// # What this package must NOT do
//
//   - Export types that appear in the public authgate API.
//   - Be imported by any package outside the authgate module.
package internal
