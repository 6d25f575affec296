// Package audit delivers security events (sign-ins, lockouts, token
// refreshes, password resets) to pluggable sinks through a buffered async
// dispatcher.
//
// The engine decides which events to emit; this package only buffers and
// forwards them. Sinks: no-op, channel, JSON lines writer, zap logger and a
// RabbitMQ publisher.
package audit
