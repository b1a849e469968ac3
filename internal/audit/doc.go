// Package audit implements async event dispatching for security-relevant
// account operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, user, session, IP.
//
// The package owns event buffering and sink delivery. It does NOT decide
// which events to emit; that responsibility belongs to the engine.
package audit
