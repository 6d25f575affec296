package shopauth

import (
	"io"

	"github.com/MrEthical07/shopauth/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one security-relevant record: sign-ins, lockouts, token
// refreshes, account flow steps.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's background dispatcher.
type AuditSink = audit.Sink

// NewJSONAuditSink writes one JSON object per event to w.
func NewJSONAuditSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogAuditSink logs events through logger, failures at warn level.
func NewLogAuditSink(logger *zap.Logger) AuditSink {
	return audit.NewZapSink(logger)
}

// NewChannelAuditSink buffers events in a channel, mostly for tests.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// DialAMQPAuditSink publishes events to a durable RabbitMQ queue. Close the
// returned sink on shutdown.
func DialAMQPAuditSink(url, queue string, logger *zap.Logger) (*audit.AMQPSink, error) {
	return audit.DialAMQPSink(url, queue, logger)
}

// MultiAuditSink fans events out to every sink.
func MultiAuditSink(sinks ...AuditSink) AuditSink {
	return audit.MultiSink(sinks)
}
