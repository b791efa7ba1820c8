package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/search"
)

// writeTestFailureTranscript writes a normalized transcript JSONL file
// containing one error→recovery tool-event pair, matching spec.md §8
// scenario 5's "Bash: Exit code 1 … test failed" shape.
func writeTestFailureTranscript(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	lines := []string{
		`{"type":"message","message":{"role":"assistant","content":[{"type":"tool_use","name":"bash","input":{"command":"go test ./..."}}]},"timestamp":"2026-01-01T10:00:00Z"}`,
		`{"type":"message","message":{"role":"user","content":[{"type":"tool_result","is_error":true,"content":"Exit code 1: test failed\nFAIL: TestSomething"}]},"timestamp":"2026-01-01T10:00:01Z"}`,
		`{"type":"message","message":{"role":"assistant","content":[{"type":"tool_use","name":"bash","input":{"command":"go test ./... -run TestSomething"}}]},"timestamp":"2026-01-01T10:00:02Z"}`,
		`{"type":"message","message":{"role":"user","content":[{"type":"tool_result","is_error":false,"content":"PASS"}]},"timestamp":"2026-01-01T10:00:03Z"}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeStore struct {
	facts  []factstore.Fact
	rowSeq int64
	deleted []string
}

func (s *fakeStore) ActiveEmbeddings(ctx context.Context) ([]factstore.Fact, error) {
	var out []factstore.Fact
	for _, f := range s.facts {
		if f.Active() && len(f.Embedding) > 0 {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) SearchFTS(ctx context.Context, ftsQuery string, limit int) ([]factstore.Fact, []float64, error) {
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
	s.deleted = append(s.deleted, key)
	for i := range s.facts {
		if s.facts[i].Key == key && s.facts[i].Active() {
			now := time.Now()
			s.facts[i].EndTime = &now
		}
	}
	return nil
}

func (s *fakeStore) History(ctx context.Context, key string) ([]factstore.Fact, error) {
	var out []factstore.Fact
	for _, f := range s.facts {
		if f.Key == key {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) SetEmbedding(ctx context.Context, rowID int64, embedding []float32) error {
	for i := range s.facts {
		if s.facts[i].RowID == rowID {
			s.facts[i].Embedding = embedding
		}
	}
	return nil
}

func fixedNow() time.Time { return time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC) }

func TestSummaryReportsTotalFacts(t *testing.T) {
	store := &fakeStore{facts: []factstore.Fact{
		{Key: "user.city", Value: "Lisbon", StartTime: fixedNow()},
	}}
	e := New(store, nil, search.DefaultConfig(), fixedNow)

	summary, err := e.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
}

func TestAggregateProducesDigestDailyWeeklyAndRollingOutputs(t *testing.T) {
	store := &fakeStore{facts: []factstore.Fact{
		{Key: "user.city", Value: "Lisbon", StartTime: fixedNow()},
		{Key: "agent.case.test_failure.a", Value: `{"outcome":"resolved"}`, StartTime: fixedNow()},
	}}
	e := New(store, nil, search.DefaultConfig(), fixedNow)

	result, err := e.Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if result.Digest.TotalFacts != 2 {
		t.Errorf("digest total facts = %d, want 2", result.Digest.TotalFacts)
	}
	if len(result.DigestJSON) == 0 {
		t.Error("expected non-empty digest JSON")
	}
	if !result.DailyDate.Equal(fixedNow()) {
		t.Errorf("daily date = %v, want %v", result.DailyDate, fixedNow())
	}
	if result.DailyLog == "" {
		t.Error("expected non-empty daily log")
	}
	wantYear, wantWeek := fixedNow().ISOWeek()
	if result.WeekYear != wantYear || result.WeekNumber != wantWeek {
		t.Errorf("week = %d-W%02d, want %d-W%02d", result.WeekYear, result.WeekNumber, wantYear, wantWeek)
	}
	if _, ok := result.WeeklyFiles["index.md"]; !ok {
		t.Error("expected weekly files to include index.md")
	}
	if len(result.RollingFiles) == 0 {
		t.Error("expected at least one rolling topic file")
	}
	if result.RollingIndex == "" {
		t.Error("expected non-empty rolling index")
	}
}

func TestStoreUpsertsAndValidatesKey(t *testing.T) {
	store := &fakeStore{}
	e := New(store, nil, search.DefaultConfig(), fixedNow)

	res, err := e.Store(context.Background(), "User/City", "Lisbon")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.Key != "user.city" {
		t.Errorf("key = %q, want normalized user.city", res.Key)
	}

	if _, err := e.Store(context.Background(), "not a valid key!!", "x"); err == nil {
		t.Error("expected error for invalid key")
	}
}

func TestSearchByPrefix(t *testing.T) {
	store := &fakeStore{facts: []factstore.Fact{
		{Key: "user.city", Value: "Lisbon", StartTime: fixedNow()},
		{Key: "pref.editor", Value: "vim", StartTime: fixedNow()},
	}}
	e := New(store, nil, search.DefaultConfig(), fixedNow)

	results, err := e.Search(context.Background(), SearchRequest{Prefix: "user"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Key != "user.city" {
		t.Errorf("results = %+v", results)
	}
}

func TestListAndDeleteInstinct(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"trigger": "x", "action": "y", "confidence": 0.7, "domain": "error", "evidence_count": 3,
	})
	store := &fakeStore{facts: []factstore.Fact{
		{Key: "agent.instinct.error.not_found", Value: string(payload), StartTime: fixedNow()},
	}}
	e := New(store, nil, search.DefaultConfig(), fixedNow)

	items, err := e.ListInstincts(context.Background())
	if err != nil {
		t.Fatalf("ListInstincts: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d instincts, want 1", len(items))
	}

	if err := e.DeleteInstinct(context.Background(), "agent.instinct.error.not_found"); err != nil {
		t.Fatalf("DeleteInstinct: %v", err)
	}
	items, err = e.ListInstincts(context.Background())
	if err != nil {
		t.Fatalf("ListInstincts after delete: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected instinct to be closed, got %d still active", len(items))
	}
}

func TestExtractInstinctsDryRunDoesNotStore(t *testing.T) {
	store := &fakeStore{}
	e := New(store, nil, search.DefaultConfig(), fixedNow)

	instincts, err := e.ExtractInstincts(context.Background(), ExtractInstinctsRequest{MinConfidence: 0.1})
	if err != nil {
		t.Fatalf("ExtractInstincts: %v", err)
	}
	if len(instincts) != 0 {
		t.Errorf("expected no instincts from an empty store, got %d", len(instincts))
	}
	if len(store.facts) != 0 {
		t.Errorf("dry run must not write, got %d facts", len(store.facts))
	}
}

func TestExtractInstinctsWithStorePersistsCasesBeforeDistilling(t *testing.T) {
	store := &fakeStore{}
	e := New(store, nil, search.DefaultConfig(), fixedNow)

	paths := make([]string, 3)
	for i := range paths {
		paths[i] = writeTestFailureTranscript(t, "session.jsonl")
	}

	instincts, err := e.ExtractInstincts(context.Background(), ExtractInstinctsRequest{
		MinConfidence: 0.5,
		Store:         true,
		Transcripts:   paths,
	})
	if err != nil {
		t.Fatalf("ExtractInstincts: %v", err)
	}

	var caseRows int
	for _, f := range store.facts {
		if strings.HasPrefix(f.Key, "agent.case.test_failure.") {
			caseRows++
		}
	}
	if caseRows != 3 {
		t.Fatalf("got %d agent.case.test_failure.* rows, want 3 (spec.md §8 scenario 5)", caseRows)
	}

	if len(instincts) != 1 || instincts[0].Key != "agent.instinct.error.test_failure" {
		t.Fatalf("instincts = %+v", instincts)
	}
	if instincts[0].Instinct.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6 for n=3", instincts[0].Instinct.Confidence)
	}

	found := false
	for _, f := range store.facts {
		if f.Key == "agent.instinct.error.test_failure" {
			found = true
		}
	}
	if !found {
		t.Error("expected the distilled instinct to also be persisted")
	}
}
