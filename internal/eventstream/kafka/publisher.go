// Package kafka publishes fact-committed events to a Kafka topic via
// segmentio/kafka-go, giving the Pipeline Orchestrator's out-of-scope
// "publication sinks" (spec.md Non-goals) a concrete, disabled-by-default
// implementation without the engine ever depending on it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/memoryforge/mnemo/internal/eventstream"
)

// DefaultTopic is the topic fact-committed events are published to when
// Config.Topic is unset.
const DefaultTopic = "mnemo.facts.committed"

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes fact-committed events to Kafka.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher connects a kafka.Writer to the configured brokers and
// topic. It does not block on broker availability; write failures surface
// from PublishFactCommitted.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: at least one broker is required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}, nil
}

// PublishFactCommitted marshals event and writes it to the topic, keyed
// on the fact's key so a topic consumer can partition by fact identity.
func (p *Publisher) PublishFactCommitted(ctx context.Context, event *eventstream.FactCommittedEvent) error {
	if event == nil {
		return eventstream.ErrNilFactEvent
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshaling event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key),
		Value: body,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
