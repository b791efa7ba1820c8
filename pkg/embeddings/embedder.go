// Package embeddings defines the provider-agnostic embedding contract
// the fact store's vector half (spec.md §4.F/§4.G) is built against.
package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding wraps failures from an embedding provider (request,
// transport, or decode errors), distinguishing them from caller misuse.
var ErrEmbedding = errors.New("embeddings: embedding request failed")

// ErrDimensionMismatch signals that a provider's declared vector width
// disagrees with the fact store's configured `dimensions` (spec.md §9,
// factstore.Config.Dimensions) before a single Embed call is made,
// rather than surfacing as a factstore.SetEmbedding error on the first
// commit.
var ErrDimensionMismatch = errors.New("embeddings: provider dimension does not match configured store dimensions")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the width of vectors this embedder produces, or
	// 0 if unknown (e.g. an unrecognized model name) — callers should
	// skip the preflight check rather than reject in that case.
	Dimensions() int

	// Close releases any resources held by the embedder.
	Close() error
}
