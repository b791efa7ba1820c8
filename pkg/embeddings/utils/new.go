// Package embeddingutils constructs a configured embeddings.Embedder and
// preflights it against the fact store's configured vector width, so a
// provider/dimensions mismatch (spec.md §9's `embedding.dimension`
// vs. factstore.Config.Dimensions) fails at startup with a clear error
// instead of surfacing from the first factstore.SetEmbedding call deep
// inside a pipeline run.
package embeddingutils

import (
	"fmt"

	"github.com/memoryforge/mnemo/pkg/embeddings"
	"github.com/memoryforge/mnemo/pkg/embeddings/ollama"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string

	// Dimensions is the fact store's configured vector width. When the
	// chosen provider/model reports a known Dimensions() that disagrees
	// with it, NewEmbedder fails fast with ErrDimensionMismatch. Leave
	// zero to skip the check (e.g. a caller that hasn't opened a store yet).
	Dimensions uint
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	var embedder embeddings.Embedder
	var err error

	switch o.ProviderType {
	case "ollama":
		embedder, err = ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
	if err != nil {
		return nil, err
	}

	if o.Dimensions != 0 {
		if declared := embedder.Dimensions(); declared != 0 && declared != int(o.Dimensions) {
			return nil, fmt.Errorf("%w: %s model %q produces %d-dim vectors, store expects %d",
				embeddings.ErrDimensionMismatch, o.ProviderType, o.Model, declared, o.Dimensions)
		}
	}

	return embedder, nil
}
