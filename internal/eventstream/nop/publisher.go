// Package nop is a no-op eventstream.Publisher used for tests and the
// default disabled mode.
package nop

import (
	"context"

	"github.com/memoryforge/mnemo/internal/eventstream"
)

// Publisher discards every event.
type Publisher struct{}

// NewPublisher creates a new no-op publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishFactCommitted validates input and otherwise does nothing.
func (p *Publisher) PublishFactCommitted(_ context.Context, event *eventstream.FactCommittedEvent) error {
	if event == nil {
		return eventstream.ErrNilFactEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
