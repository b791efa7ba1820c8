// Package chroma adapts the teacher's Chroma REST driver (pkg/vector/chroma)
// into an internal/vectorindex.Index backing the Semantic Deduper, storing
// each fact's row ID and key/value as document ID and metadata instead of
// a merkle node hash.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/vectorindex"
)

// DefaultCollectionName is the collection mnemo facts are stored under.
const DefaultCollectionName = "mnemo_facts"

// Config holds configuration for the Chroma vector index.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName defaults to DefaultCollectionName if empty.
	CollectionName string
}

// Index implements vectorindex.Index using Chroma's REST API.
type Index struct {
	baseURL        string
	collectionName string
	collectionID   string
	httpClient     *http.Client
	logger         *zap.Logger
}

// New connects to Chroma and gets or creates the facts collection.
func New(c Config, logger *zap.Logger) (*Index, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma vector index: URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	idx := &Index{
		baseURL:        c.URL,
		collectionName: collectionName,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		logger:         logger,
	}

	id, err := idx.getOrCreateCollection(context.Background())
	if err != nil {
		return nil, fmt.Errorf("chroma vector index: getting or creating collection %q: %w", collectionName, err)
	}
	idx.collectionID = id

	logger.Info("connected to chroma vector index",
		zap.String("url", c.URL),
		zap.String("collection", collectionName),
	)
	return idx, nil
}

func (idx *Index) getOrCreateCollection(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s", idx.baseURL, idx.collectionName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating get request: %w", err)
	}
	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var c collection
		if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
			return "", fmt.Errorf("decoding collection response: %w", err)
		}
		return c.ID, nil
	}

	createURL := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections", idx.baseURL)
	body, err := json.Marshal(map[string]string{"name": idx.collectionName})
	if err != nil {
		return "", fmt.Errorf("marshaling create request: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPost, createURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = idx.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending create request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("creating collection: status %d: %s", resp.StatusCode, string(b))
	}

	var c collection
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}
	return c.ID, nil
}

// Upsert stores or replaces rec's embedding under its row ID.
func (idx *Index) Upsert(ctx context.Context, rec vectorindex.Record) error {
	body, err := json.Marshal(addRequest{
		IDs:        []string{idString(rec.RowID)},
		Embeddings: [][]float32{rec.Embedding},
		Metadatas:  []map[string]any{{"key": rec.Key, "value": rec.Value}},
	})
	if err != nil {
		return fmt.Errorf("chroma vector index: marshaling upsert: %w", err)
	}

	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s/upsert", idx.baseURL, idx.collectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chroma vector index: creating upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chroma vector index: sending upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma vector index: upsert failed: status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Query finds the topK most similar records to embedding.
func (idx *Index) Query(ctx context.Context, embedding []float32, topK int) ([]vectorindex.Candidate, error) {
	if topK <= 0 {
		topK = 10
	}

	body, err := json.Marshal(queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "distances"},
	})
	if err != nil {
		return nil, fmt.Errorf("chroma vector index: marshaling query: %w", err)
	}

	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s/query", idx.baseURL, idx.collectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chroma vector index: creating query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chroma vector index: sending query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chroma vector index: query failed: status %d: %s", resp.StatusCode, string(b))
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("chroma vector index: decoding query response: %w", err)
	}

	if len(qr.IDs) == 0 || len(qr.IDs[0]) == 0 {
		return nil, nil
	}

	ids := qr.IDs[0]
	distances := qr.Distances[0]
	var metas []map[string]any
	if len(qr.Metadatas) > 0 {
		metas = qr.Metadatas[0]
	}

	candidates := make([]vectorindex.Candidate, 0, len(ids))
	for i, id := range ids {
		rowID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		c := vectorindex.Candidate{Record: vectorindex.Record{RowID: rowID}}
		if i < len(metas) && metas[i] != nil {
			if key, ok := metas[i]["key"].(string); ok {
				c.Key = key
			}
			if value, ok := metas[i]["value"].(string); ok {
				c.Value = value
			}
		}
		if i < len(distances) {
			// Chroma returns squared L2 distance for the default space;
			// fold it into a 0-1 similarity the same way the deduper's
			// cosine path does.
			c.Similarity = 1.0 / (1.0 + float64(distances[i]))
		}
		candidates = append(candidates, c)
	}

	idx.logger.Debug("queried chroma vector index", zap.Int("results", len(candidates)))
	return candidates, nil
}

// Delete removes a record by row ID.
func (idx *Index) Delete(ctx context.Context, rowID int64) error {
	body, err := json.Marshal(deleteRequest{IDs: []string{idString(rowID)}})
	if err != nil {
		return fmt.Errorf("chroma vector index: marshaling delete: %w", err)
	}

	url := fmt.Sprintf("%s/api/v2/tenants/default_tenant/databases/default_database/collections/%s/delete", idx.baseURL, idx.collectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chroma vector index: creating delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chroma vector index: sending delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chroma vector index: delete failed: status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Close releases resources held by the index.
func (idx *Index) Close() error {
	return nil
}

func idString(rowID int64) string {
	return strconv.FormatInt(rowID, 10)
}
