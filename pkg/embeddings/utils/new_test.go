package embeddingutils

import (
	"errors"
	"testing"

	"github.com/memoryforge/mnemo/pkg/embeddings"
)

func TestNewEmbedderRejectsUnsupportedProvider(t *testing.T) {
	if _, err := NewEmbedder(&NewEmbedderOpts{ProviderType: "bedrock"}); err == nil {
		t.Fatal("expected an error for an unsupported provider")
	}
}

func TestNewEmbedderDetectsDimensionMismatch(t *testing.T) {
	_, err := NewEmbedder(&NewEmbedderOpts{
		ProviderType: "ollama",
		Model:        "nomic-embed-text", // 768-dim, per pkg/embeddings/ollama's modelDimensions
		Dimensions:   1024,
	})
	if err == nil {
		t.Fatal("expected a dimension mismatch error")
	}
	if !errors.Is(err, embeddings.ErrDimensionMismatch) {
		t.Errorf("expected error to wrap embeddings.ErrDimensionMismatch, got %v", err)
	}
}

func TestNewEmbedderAcceptsMatchingDimensions(t *testing.T) {
	e, err := NewEmbedder(&NewEmbedderOpts{
		ProviderType: "ollama",
		Model:        "nomic-embed-text",
		Dimensions:   768,
	})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if e.Dimensions() != 768 {
		t.Errorf("Dimensions() = %d, want 768", e.Dimensions())
	}
}

func TestNewEmbedderSkipsCheckForUnknownModel(t *testing.T) {
	e, err := NewEmbedder(&NewEmbedderOpts{
		ProviderType: "ollama",
		Model:        "some-future-model",
		Dimensions:   1536,
	})
	if err != nil {
		t.Fatalf("NewEmbedder: %v, want no error when the model's dimension is unknown", err)
	}
	if e == nil {
		t.Fatal("expected a non-nil embedder")
	}
}
