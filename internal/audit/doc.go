// Package audit implements async mirroring of security events to external sinks.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op). The
//     Kafka sink lives in audit/kafkasink.
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//     Sink errors are logged and counted, never returned to the emitter.
//   - [Event]: structured audit record with timestamp, type, severity, user, device, IP and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Engine does, after the per-user lock is released.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authgate or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
