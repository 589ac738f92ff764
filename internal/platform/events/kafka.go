// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Producer is the subset of kafka.Writer used by the publisher.
type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher encodes events as JSON and writes them keyed for partition affinity.
type Publisher struct {
	producer Producer
}

// NewKafkaPublisher builds a publisher writing to topic on brokers. With no
// brokers it returns a publisher that drops every event.
func NewKafkaPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 || topic == "" {
		return &Publisher{}
	}
	return NewPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	})
}

// NewPublisher wraps an existing producer.
func NewPublisher(producer Producer) *Publisher {
	return &Publisher{producer: producer}
}

// Enabled reports whether events leave the process.
func (p *Publisher) Enabled() bool {
	return p != nil && p.producer != nil
}

// Publish writes one event. The trace context travels in the message headers.
func (p *Publisher) Publish(ctx context.Context, eventType, key string, payload any) error {
	if !p.Enabled() {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", eventType, err)
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := []kafka.Header{{Key: "event_type", Value: []byte(eventType)}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	msg := kafka.Message{Key: []byte(key), Value: body, Headers: headers, Time: time.Now().UTC()}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", eventType, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.producer.Close()
}
