package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes each event as a JSON message to a RabbitMQ queue.
type AMQPSink struct {
	conn    *amqp.Connection
	channel publisher
	queue   string
	logger  *zap.Logger
}

// DialAMQPSink connects to url and declares a durable queue.
func DialAMQPSink(url, queue string, logger *zap.Logger) (*AMQPSink, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if strings.TrimSpace(queue) == "" {
		return nil, errors.New("rabbitmq queue is required")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	sink := newAMQPSink(ch, queue, logger)
	sink.conn = conn
	return sink, nil
}

func newAMQPSink(ch publisher, queue string, logger *zap.Logger) *AMQPSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPSink{channel: ch, queue: queue, logger: logger}
}

func (s *AMQPSink) Emit(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	err = s.channel.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Type:         event.EventType,
		Body:         body,
	})
	if err != nil {
		s.logger.Warn("audit publish failed", zap.String("event_type", event.EventType), zap.Error(err))
	}
}

// Close releases the broker connection.
func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
