// Package audit relays session lifecycle events (login, refresh episodes,
// logout) to a caller-supplied sink without blocking the request path.
//
// # Components
//
//   - [Sink] receives events. Channel, JSON-lines, logrus and no-op sinks are provided.
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event] is one record: type, subject, refresh episode, outcome, metadata.
//
// # What this package must NOT do
//
//   - Decide which events to emit. The session client does that.
//   - Import goSession or any sibling internal package.
package audit
