package mcpserver

import (
	"context"
	"testing"
	"time"

	"github.com/memoryforge/mnemo/internal/engine"
	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/search"
)

type fakeStore struct {
	facts  []factstore.Fact
	rowSeq int64
}

func (s *fakeStore) ActiveEmbeddings(ctx context.Context) ([]factstore.Fact, error) { return nil, nil }
func (s *fakeStore) SearchFTS(ctx context.Context, q string, limit int) ([]factstore.Fact, []float64, error) {
	return nil, nil, nil
}
func (s *fakeStore) ActiveAll(ctx context.Context) ([]factstore.Fact, error) {
	var out []factstore.Fact
	for _, f := range s.facts {
		if f.Active() {
			out = append(out, f)
		}
	}
	return out, nil
}
func (s *fakeStore) ActivePrefix(ctx context.Context, prefix string) ([]factstore.Fact, error) {
	var out []factstore.Fact
	for _, f := range s.facts {
		if f.Active() && len(f.Key) >= len(prefix) && f.Key[:len(prefix)] == prefix {
			out = append(out, f)
		}
	}
	return out, nil
}
func (s *fakeStore) Upsert(ctx context.Context, fact factstore.Fact) (factstore.UpsertResult, int64, error) {
	s.rowSeq++
	fact.RowID = s.rowSeq
	s.facts = append(s.facts, fact)
	return factstore.ResultCreated, s.rowSeq, nil
}
func (s *fakeStore) Delete(ctx context.Context, key string) error {
	for i := range s.facts {
		if s.facts[i].Key == key && s.facts[i].Active() {
			now := time.Now()
			s.facts[i].EndTime = &now
		}
	}
	return nil
}
func (s *fakeStore) History(ctx context.Context, key string) ([]factstore.Fact, error) { return nil, nil }
func (s *fakeStore) SetEmbedding(ctx context.Context, rowID int64, embedding []float32) error {
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := &fakeStore{facts: []factstore.Fact{
		{Key: "user.city", Value: "Lisbon", StartTime: time.Now()},
	}}
	eng := engine.New(store, nil, search.DefaultConfig(), nil)
	s, err := NewServer(Config{Engine: eng})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func TestNewServerRequiresEngineUnlessNoop(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Error("expected error when Engine is nil and Noop is false")
	}
	if _, err := NewServer(Config{Noop: true}); err != nil {
		t.Errorf("Noop server should not require an engine: %v", err)
	}
}

func TestHandleSummaryReturnsOutput(t *testing.T) {
	s := newTestServer(t)
	result, output, err := s.handleSummary(context.Background(), nil, SummaryInput{})
	if err != nil {
		t.Fatalf("handleSummary: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if output.Summary == "" {
		t.Error("expected non-empty summary")
	}
}

func TestHandleSearchByPrefix(t *testing.T) {
	s := newTestServer(t)
	_, output, err := s.handleSearch(context.Background(), nil, SearchInput{Prefix: "user"})
	if err != nil {
		t.Fatalf("handleSearch: %v", err)
	}
	if len(output.Results) != 1 || output.Results[0].Key != "user.city" {
		t.Errorf("results = %+v", output.Results)
	}
}

func TestHandleStoreRequiresKeyAndValue(t *testing.T) {
	s := newTestServer(t)
	result, _, err := s.handleStore(context.Background(), nil, StoreInput{})
	if err != nil {
		t.Fatalf("handleStore: %v", err)
	}
	if !result.IsError {
		t.Error("expected an error result for missing key/value")
	}
}

func TestHandleStoreUpsertsFact(t *testing.T) {
	s := newTestServer(t)
	result, output, err := s.handleStore(context.Background(), nil, StoreInput{Key: "preference.editor", Value: "vim"})
	if err != nil {
		t.Fatalf("handleStore: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if output.Key != "preference.editor" {
		t.Errorf("key = %q", output.Key)
	}
}

func TestHandleListAndDeleteInstinct(t *testing.T) {
	s := newTestServer(t)
	store := s.config.Engine

	if _, err := store.Store(context.Background(), "agent.instinct.error.not_found", `{"trigger":"x","action":"y","confidence":0.7,"domain":"error","evidence_count":3}`); err != nil {
		t.Fatalf("seeding instinct: %v", err)
	}

	_, listOut, err := s.handleListInstincts(context.Background(), nil, ListInstinctsInput{})
	if err != nil {
		t.Fatalf("handleListInstincts: %v", err)
	}
	if len(listOut.Instincts) != 1 {
		t.Fatalf("got %d instincts, want 1", len(listOut.Instincts))
	}

	result, _, err := s.handleDeleteInstinct(context.Background(), nil, DeleteInstinctInput{Key: "agent.instinct.error.not_found"})
	if err != nil {
		t.Fatalf("handleDeleteInstinct: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}

	_, listOut, err = s.handleListInstincts(context.Background(), nil, ListInstinctsInput{})
	if err != nil {
		t.Fatalf("handleListInstincts after delete: %v", err)
	}
	if len(listOut.Instincts) != 0 {
		t.Errorf("expected instinct closed, got %d still active", len(listOut.Instincts))
	}
}
