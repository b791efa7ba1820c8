// Package qdrant adapts github.com/qdrant/go-client's gRPC client into an
// internal/vectorindex.Index, generalizing the teacher's Chroma HTTP
// driver pattern (pkg/vector/chroma) to a gRPC-based alternative backend
// for the Semantic Deduper.
package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/vectorindex"
)

// DefaultCollectionName is the collection mnemo facts are stored under.
const DefaultCollectionName = "mnemo_facts"

// Config holds configuration for the Qdrant vector index.
type Config struct {
	// Host is the Qdrant gRPC host, e.g. "localhost".
	Host string

	// Port is the Qdrant gRPC port. Defaults to 6334.
	Port int

	// APIKey authenticates against a Qdrant Cloud instance, if set.
	APIKey string

	// CollectionName defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the embedding width the collection is created with.
	Dimensions uint64
}

// Index implements vectorindex.Index against a Qdrant collection.
type Index struct {
	client         *qdrant.Client
	collectionName string
	logger         *zap.Logger
}

// New connects to Qdrant and ensures the facts collection exists.
func New(c Config, logger *zap.Logger) (*Index, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant vector index: host is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}
	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}
	dimensions := c.Dimensions
	if dimensions == 0 {
		dimensions = 768
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   port,
		APIKey: c.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant vector index: connecting: %w", err)
	}

	ctx := context.Background()
	exists, err := client.CollectionExists(ctx, collectionName)
	if err != nil {
		return nil, fmt.Errorf("qdrant vector index: checking collection %q: %w", collectionName, err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dimensions,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant vector index: creating collection %q: %w", collectionName, err)
		}
	}

	logger.Info("connected to qdrant vector index",
		zap.String("host", c.Host),
		zap.Int("port", port),
		zap.String("collection", collectionName),
	)

	return &Index{client: client, collectionName: collectionName, logger: logger}, nil
}

// Upsert stores or replaces rec's embedding under its row ID.
func (idx *Index) Upsert(ctx context.Context, rec vectorindex.Record) error {
	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collectionName,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(uint64(rec.RowID)),
				Vectors: qdrant.NewVectors(rec.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"key":   rec.Key,
					"value": rec.Value,
				}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant vector index: upsert: %w", err)
	}
	return nil
}

// Query finds the topK most similar records to embedding.
func (idx *Index) Query(ctx context.Context, embedding []float32, topK int) ([]vectorindex.Candidate, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)

	points, err := idx.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: idx.collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant vector index: query: %w", err)
	}

	candidates := make([]vectorindex.Candidate, 0, len(points))
	for _, p := range points {
		c := vectorindex.Candidate{
			Record:     vectorindex.Record{RowID: int64(p.Id.GetNum())},
			Similarity: float64(p.GetScore()),
		}
		if payload := p.GetPayload(); payload != nil {
			if v, ok := payload["key"]; ok {
				c.Key = v.GetStringValue()
			}
			if v, ok := payload["value"]; ok {
				c.Value = v.GetStringValue()
			}
		}
		candidates = append(candidates, c)
	}

	idx.logger.Debug("queried qdrant vector index", zap.Int("results", len(candidates)))
	return candidates, nil
}

// Delete removes a record by row ID.
func (idx *Index) Delete(ctx context.Context, rowID int64) error {
	_, err := idx.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: idx.collectionName,
		Points: qdrant.NewPointsSelector(
			qdrant.NewIDNum(uint64(rowID)),
		),
	})
	if err != nil {
		return fmt.Errorf("qdrant vector index: delete: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (idx *Index) Close() error {
	return idx.client.Close()
}
