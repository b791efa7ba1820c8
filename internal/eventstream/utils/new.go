// Package eventstreamutils selects an eventstream.Publisher implementation
// by provider name, mirroring pkg/embeddings/utils' provider switch.
package eventstreamutils

import (
	"fmt"

	"github.com/memoryforge/mnemo/internal/eventstream"
	"github.com/memoryforge/mnemo/internal/eventstream/kafka"
	"github.com/memoryforge/mnemo/internal/eventstream/nop"
)

// NewPublisherOpts configures NewPublisher.
type NewPublisherOpts struct {
	ProviderType string // "" or "nop" disables publication; "kafka" enables it
	KafkaBrokers []string
	KafkaTopic   string
}

// NewPublisher builds the named publisher, defaulting to a no-op sink.
func NewPublisher(o *NewPublisherOpts) (eventstream.Publisher, error) {
	switch o.ProviderType {
	case "", "nop":
		return nop.NewPublisher(), nil
	case "kafka":
		return kafka.NewPublisher(kafka.Config{Brokers: o.KafkaBrokers, Topic: o.KafkaTopic})
	default:
		return nil, fmt.Errorf("unsupported eventstream provider: %s", o.ProviderType)
	}
}
