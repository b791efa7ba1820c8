// Package vectorindex defines the pluggable external vector backend used
// by the Semantic Deduper (spec.md §4.E) when vector_store.provider names
// an out-of-process store instead of the Fact Store's built-in sqlite-vec
// index. It generalizes the teacher's pkg/vector.VectorDriver (hash/ID
// keyed merkle-node documents) to row-keyed facts.
package vectorindex

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is not found in the index.
var ErrNotFound = errors.New("vectorindex: record not found")

// Record is one fact's embedding as stored in an external index.
type Record struct {
	RowID     int64
	Key       string
	Value     string
	Embedding []float32
}

// Candidate is a Record returned by Query, annotated with its similarity
// score against the queried embedding (higher is more similar).
type Candidate struct {
	Record
	Similarity float64
}

// Index handles storage and similarity search of fact embeddings in a
// backend external to the Fact Store.
type Index interface {
	// Upsert stores or replaces a record under its RowID.
	Upsert(ctx context.Context, rec Record) error

	// Query finds the topK most similar records to embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]Candidate, error)

	// Delete removes a record by RowID. Deleting a record that does not
	// exist is not an error.
	Delete(ctx context.Context, rowID int64) error

	// Close releases any resources held by the index.
	Close() error
}
