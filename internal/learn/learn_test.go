package learn

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/transcript"
)

// fakeStore is a minimal in-memory Store for exercising Commit/Load
// round-trips without a real factstore.Store.
type fakeStore struct {
	facts []factstore.Fact
}

func (s *fakeStore) ActivePrefix(_ context.Context, prefix string) ([]factstore.Fact, error) {
	var out []factstore.Fact
	for _, f := range s.facts {
		if f.Key == prefix || strings.HasPrefix(f.Key, prefix+".") {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeStore) Upsert(_ context.Context, fact factstore.Fact) (factstore.UpsertResult, int64, error) {
	for i, f := range s.facts {
		if f.Key == fact.Key {
			s.facts[i] = fact
			return factstore.ResultSuperseded, int64(i + 1), nil
		}
	}
	s.facts = append(s.facts, fact)
	return factstore.ResultCreated, int64(len(s.facts)), nil
}

func ev(tool string, isErr bool, result string, offset int) transcript.ToolEvent {
	return transcript.ToolEvent{
		Tool:      tool,
		IsError:   isErr,
		Result:    result,
		Timestamp: time.Date(2026, 1, 1, 0, 0, offset, 0, time.UTC),
	}
}

func TestExtractCasesDetectsErrorThenRecoveryWithinWindow(t *testing.T) {
	events := []transcript.ToolEvent{
		ev("read_file", true, "Error: ENOENT: no such file or directory", 0),
		ev("list_dir", false, "a.txt\nb.txt", 1),
		ev("read_file", false, "contents", 2),
	}
	cases := ExtractCases(events, "session:a")
	if len(cases) != 1 {
		t.Fatalf("got %d cases, want 1", len(cases))
	}
	c := cases[0]
	if c.ErrorType != "not_found" {
		t.Errorf("error type = %q, want not_found", c.ErrorType)
	}
	if c.Outcome != "resolved" {
		t.Errorf("outcome = %q, want resolved", c.Outcome)
	}
	if len(c.Solution.Tools) == 0 {
		t.Error("expected at least one tool recorded in solution")
	}
}

func TestExtractCasesRequiresASuccessSomewhereInTheLog(t *testing.T) {
	events := []transcript.ToolEvent{ev("x", true, "permission denied", 0)}
	for i := 1; i <= caseWindow+2; i++ {
		events = append(events, ev("y", true, "still failing", i))
	}

	cases := ExtractCases(events, "session:a")
	if len(cases) != 0 {
		t.Errorf("got %d cases, want 0 (no success ever occurs)", len(cases))
	}
}

func TestCategorize(t *testing.T) {
	tests := map[string]string{
		"Permission denied":              "permission",
		"ENOENT: no such file":           "not_found",
		"SyntaxError: unexpected token":  "syntax",
		"3 failures: test_foo":           "test_failure",
		"ECONNREFUSED 127.0.0.1:8080":    "network",
		"CONFLICT (content): Merge":      "conflict",
		"ModuleNotFoundError: no module": "import",
		"something unrelated":            "generic",
	}
	for input, want := range tests {
		if got := categorize(input); got != want {
			t.Errorf("categorize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExtractPatternsFrequentTool(t *testing.T) {
	var events []transcript.ToolEvent
	for i := 0; i < 5; i++ {
		events = append(events, ev("bash", false, "ok", i))
	}
	patterns := ExtractPatterns(events)

	found := false
	for _, p := range patterns {
		if p.Name == "frequent_bash" {
			found = true
			if p.Pattern.Count != 5 {
				t.Errorf("count = %d, want 5", p.Pattern.Count)
			}
		}
	}
	if !found {
		t.Error("expected frequent_bash pattern")
	}
}

func TestExtractPatternsSequence(t *testing.T) {
	var events []transcript.ToolEvent
	for i := 0; i < 3; i++ {
		events = append(events, ev("read", false, "ok", i*2))
		events = append(events, ev("write", false, "ok", i*2+1))
	}
	patterns := ExtractPatterns(events)

	found := false
	for _, p := range patterns {
		if p.Pattern.Type == "sequence" && len(p.Pattern.Sequence) == 2 &&
			p.Pattern.Sequence[0] == "read" && p.Pattern.Sequence[1] == "write" {
			found = true
		}
	}
	if !found {
		t.Error("expected a read>write sequence pattern with count >= 3")
	}
}

func TestExtractPatternsWorkflowStreak(t *testing.T) {
	var events []transcript.ToolEvent
	for i := 0; i < 6; i++ {
		events = append(events, ev("edit", false, "ok", i))
	}
	patterns := ExtractPatterns(events)

	found := false
	for _, p := range patterns {
		if p.Pattern.Type == "workflow" && p.Pattern.Count == 6 {
			found = true
		}
	}
	if !found {
		t.Error("expected a workflow streak pattern of length 6")
	}
}

func TestExtractInstinctsGroupsCasesByErrorType(t *testing.T) {
	cases := []Case{
		{ErrorType: "not_found", Solution: Solution{Tools: []string{"list_dir"}, Description: "listed dir then retried"}},
		{ErrorType: "not_found", Solution: Solution{Tools: []string{"list_dir"}, Description: "same fix again"}},
	}
	instincts := ExtractInstincts(cases, nil, 0.5)

	if len(instincts) != 1 {
		t.Fatalf("got %d instincts, want 1", len(instincts))
	}
	if instincts[0].Key != "agent.instinct.error.not_found" {
		t.Errorf("key = %q", instincts[0].Key)
	}
	if instincts[0].Instinct.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5 for group of 2", instincts[0].Instinct.Confidence)
	}
}

func TestExtractInstinctsFiltersByMinConfidence(t *testing.T) {
	cases := []Case{
		{ErrorType: "network", Solution: Solution{Description: "retried"}},
		{ErrorType: "network", Solution: Solution{Description: "retried again"}},
	}
	instincts := ExtractInstincts(cases, nil, 0.9)
	if len(instincts) != 0 {
		t.Errorf("got %d instincts, want 0 (confidence 0.5 < min 0.9)", len(instincts))
	}
}

func TestExtractInstinctsToolPreference(t *testing.T) {
	patterns := []NamedPattern{
		{Name: "frequent_bash", Pattern: Pattern{Type: "frequent_tool", Tool: "bash", Count: 12, Confidence: 0.9}},
	}
	instincts := ExtractInstincts(nil, patterns, 0.5)
	if len(instincts) != 1 || instincts[0].Key != "agent.instinct.tool.prefer_bash" {
		t.Errorf("instincts = %+v", instincts)
	}
}

func TestCommitCasesWritesDistinctRowsPerErrorType(t *testing.T) {
	store := &fakeStore{}
	cases := []Case{
		{ErrorType: "test_failure", Outcome: "resolved"},
		{ErrorType: "test_failure", Outcome: "resolved"},
		{ErrorType: "test_failure", Outcome: "resolved"},
	}

	if err := CommitCases(context.Background(), store, cases, time.Now()); err != nil {
		t.Fatalf("CommitCases: %v", err)
	}

	loaded, err := LoadCases(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadCases: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("got %d cases, want 3 distinct rows (spec.md §8 scenario 5)", len(loaded))
	}
	for _, c := range loaded {
		if c.ErrorType != "test_failure" {
			t.Errorf("error type = %q, want test_failure", c.ErrorType)
		}
	}
}

func TestCommitPatternsSupersedesSameName(t *testing.T) {
	store := &fakeStore{}
	first := []NamedPattern{{Name: "frequent_bash", Pattern: Pattern{Type: "frequent_tool", Tool: "bash", Count: 5, Confidence: 0.7}}}
	second := []NamedPattern{{Name: "frequent_bash", Pattern: Pattern{Type: "frequent_tool", Tool: "bash", Count: 9, Confidence: 0.8}}}

	if err := CommitPatterns(context.Background(), store, first, time.Now()); err != nil {
		t.Fatalf("CommitPatterns: %v", err)
	}
	if err := CommitPatterns(context.Background(), store, second, time.Now()); err != nil {
		t.Fatalf("CommitPatterns: %v", err)
	}

	loaded, err := LoadPatterns(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadPatterns: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d patterns, want 1 (re-mining supersedes rather than duplicates)", len(loaded))
	}
	if loaded[0].Pattern.Count != 9 {
		t.Errorf("count = %d, want 9 (latest mining wins)", loaded[0].Pattern.Count)
	}
}

func TestExtractCasesFromTestFailureTranscriptsProduceThreeRows(t *testing.T) {
	store := &fakeStore{}
	for i := 0; i < 3; i++ {
		events := []transcript.ToolEvent{
			ev("bash", true, "Exit code 1: test failed\nFAIL: TestSomething", 0),
			ev("bash", false, "PASS", 1),
		}
		cases := ExtractCases(events, "session:x")
		if err := CommitCases(context.Background(), store, cases, time.Now()); err != nil {
			t.Fatalf("CommitCases: %v", err)
		}
	}

	loaded, err := LoadCases(context.Background(), store)
	if err != nil {
		t.Fatalf("LoadCases: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("got %d cases, want 3 (spec.md §8 scenario 5)", len(loaded))
	}

	instincts := ExtractInstincts(loaded, nil, 0.5)
	if len(instincts) != 1 || instincts[0].Key != "agent.instinct.error.test_failure" {
		t.Fatalf("instincts = %+v", instincts)
	}
	if instincts[0].Instinct.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6 for n=3", instincts[0].Instinct.Confidence)
	}
}
