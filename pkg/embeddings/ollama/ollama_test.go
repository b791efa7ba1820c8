package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/memoryforge/mnemo/pkg/embeddings"
)

func TestDimensionsKnownModel(t *testing.T) {
	e, err := NewEmbedder(EmbedderConfig{Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if got := e.Dimensions(); got != 768 {
		t.Errorf("Dimensions() = %d, want 768", got)
	}
}

func TestDimensionsUnknownModelReportsZero(t *testing.T) {
	e, err := NewEmbedder(EmbedderConfig{Model: "some-custom-model"})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if got := e.Dimensions(); got != 0 {
		t.Errorf("Dimensions() = %d, want 0 for an unrecognized model", got)
	}
}

func TestEmbedRejectsUnexpectedVectorWidth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{make([]float32, 5)},
		})
	}))
	defer srv.Close()

	e, err := NewEmbedder(EmbedderConfig{BaseURL: srv.URL, Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}

	_, err = e.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected an error for a 5-dim vector from a 768-dim model")
	}
}

func TestEmbedReturnsVectorOnSuccess(t *testing.T) {
	want := make([]float32, 768)
	want[0] = 0.5

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{want},
		})
	}))
	defer srv.Close()

	e, err := NewEmbedder(EmbedderConfig{BaseURL: srv.URL, Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}

	got, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 768 || got[0] != 0.5 {
		t.Errorf("unexpected vector: %v", got)
	}
}

func TestEmbedWrapsErrEmbeddingOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewEmbedder(EmbedderConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}

	_, err = e.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for a 500 response")
	}
	if !errors.Is(err, embeddings.ErrEmbedding) {
		t.Errorf("expected error to wrap embeddings.ErrEmbedding, got %v", err)
	}
}
