// Package kafkasink mirrors authgate audit events to a Kafka topic.
//
// Messages are keyed by user id and written with a hash balancer, so the
// events of one user land on one partition in emission order. The value is
// the JSON encoding of the event.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MrEthical07/authgate"
)

const defaultWriteTimeout = 5 * time.Second

// Config selects the brokers and topic.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	// Async hands messages to the writer's background batcher. Delivery
	// errors are then reported by kafka-go and not by Emit.
	Async bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink is an authgate.AuditSink backed by a kafka.Writer.
type Sink struct {
	writer  messageWriter
	timeout time.Duration
}

var _ authgate.AuditSink = (*Sink)(nil)

// New builds a sink. Call Close when shutting down.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasink: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafkasink: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        cfg.Async,
	}
	return newSink(w, cfg.WriteTimeout), nil
}

func newSink(w messageWriter, timeout time.Duration) *Sink {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Sink{writer: w, timeout: timeout}
}

// Emit writes one event.
func (s *Sink) Emit(ctx context.Context, event authgate.AuditEvent) error {
	if s == nil || s.writer == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	})
}

// Close flushes pending messages and closes the writer.
func (s *Sink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
