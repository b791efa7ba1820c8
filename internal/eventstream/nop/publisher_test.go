package nop

import (
	"context"
	"testing"

	"github.com/memoryforge/mnemo/internal/eventstream"
)

func TestPublishFactCommittedRejectsNil(t *testing.T) {
	p := NewPublisher()
	if err := p.PublishFactCommitted(context.Background(), nil); err != eventstream.ErrNilFactEvent {
		t.Fatalf("err = %v, want ErrNilFactEvent", err)
	}
}

func TestPublishFactCommittedDiscards(t *testing.T) {
	p := NewPublisher()
	err := p.PublishFactCommitted(context.Background(), &eventstream.FactCommittedEvent{Key: "user.city"})
	if err != nil {
		t.Fatalf("PublishFactCommitted: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
