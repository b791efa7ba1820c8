// Package eventstream defines the Pipeline Orchestrator's optional
// publication sink for fact-committed events, generalized from the
// teacher's pkg/eventstream.Publisher (a per-turn, transport-neutral
// event abstraction used there for tapes.turn.persisted). The engine
// never blocks on a Publisher: a disabled or unreachable sink degrades
// to the nop implementation, never to a failed commit.
package eventstream

import (
	"context"
	"errors"
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeFactCommitted is emitted after the Pipeline Orchestrator
	// commits a fact (create or merge) to the Fact Store.
	EventTypeFactCommitted = "mnemo.fact.committed"
)

// ErrNilFactEvent indicates a nil event payload was given to a publisher.
var ErrNilFactEvent = errors.New("nil fact committed event")

// FactCommittedEvent is a transport-neutral event payload describing one
// fact committed by the Pipeline Orchestrator.
type FactCommittedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	SourceID      string    `json:"source_id"`
	Key           string    `json:"key"`
	Value         string    `json:"value"`
	Action        string    `json:"action"` // "create" or "merge"
	RowID         int64     `json:"row_id"`
}

// Publisher publishes fact-committed events to an event stream backend.
type Publisher interface {
	PublishFactCommitted(ctx context.Context, event *FactCommittedEvent) error
	Close() error
}
