// Package learn implements the Learning Extractor (spec.md §4.J): it
// mines transcripts for error→recovery cases and tool-usage patterns,
// then distills the fact store's accumulated cases/patterns into
// confidence-scored instincts.
//
// No teacher or example repo in the corpus implements anything resembling
// case/pattern/instinct mining (confirmed by a corpus-wide search for
// "instinct", "pattern.*sequence", "frequent_<tool>"); this package is
// built fresh, following pkg/deck/facets.go's discipline of decoding an
// LLM-free heuristic into a typed struct once at ingest, then storing the
// result as an ordinary fact via internal/factstore.Upsert (CommitCases,
// CommitPatterns). A pattern committed again under the same name supersedes
// its prior version; each case is stored under a fresh key, so cases
// accumulate rather than supersede one another.
package learn

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/transcript"
)

// caseWindow is the "short window" spec.md §4.J allows between an error
// result and the recovering success, measured in tool events.
const caseWindow = 4

// Case is an agent.case.<error_type>.<id> value.
type Case struct {
	Problem  string   `json:"problem"`
	Solution Solution `json:"solution"`
	Outcome  string   `json:"outcome"`
	Session  string   `json:"session"`
	ErrorType string  `json:"-"`
}

// Solution is the case's `solution` sub-object.
type Solution struct {
	Tools       []string `json:"tools"`
	Actions     []string `json:"actions"`
	Description string   `json:"description"`
}

// ExtractCases scans events for an error result followed within
// caseWindow events by a success, per spec.md §4.J.
func ExtractCases(events []transcript.ToolEvent, sessionID string) []Case {
	var cases []Case
	for i, ev := range events {
		if !ev.IsError {
			continue
		}
		for j := i + 1; j < len(events) && j <= i+caseWindow; j++ {
			if events[j].IsError {
				continue
			}
			cases = append(cases, buildCase(events[i:j+1], sessionID))
			break
		}
	}
	return cases
}

func buildCase(window []transcript.ToolEvent, sessionID string) Case {
	errorEvent := window[0]
	problem := extractProblem(errorEvent.Result)
	errorType := categorize(errorEvent.Result)

	toolSeen := make(map[string]bool)
	var tools, actions []string
	for _, ev := range window {
		if !toolSeen[ev.Tool] {
			toolSeen[ev.Tool] = true
			tools = append(tools, ev.Tool)
		}
		if len(actions) < 3 {
			actions = append(actions, truncate(ev.Input, 80))
		}
	}

	return Case{
		Problem: problem,
		Solution: Solution{
			Tools:       tools,
			Actions:     actions,
			Description: truncate(window[len(window)-1].Result, 200),
		},
		Outcome:   "resolved",
		Session:   sessionID,
		ErrorType: errorType,
	}
}

// extractProblem applies a keyword-salience heuristic: the first line
// containing a recognized error keyword, or the first line if none match.
func extractProblem(errorText string) string {
	lines := strings.Split(errorText, "\n")
	keywords := []string{"error", "exception", "failed", "denied", "not found", "timeout", "refused"}
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return truncate(strings.TrimSpace(line), 200)
			}
		}
	}
	if len(lines) > 0 {
		return truncate(strings.TrimSpace(lines[0]), 200)
	}
	return truncate(errorText, 200)
}

// categorize classifies an error payload into spec.md §4.J's enumerated
// error types via keyword matching.
func categorize(errorText string) string {
	lower := strings.ToLower(errorText)
	switch {
	case containsAny(lower, "permission denied", "eacces", "forbidden", "unauthorized"):
		return "permission"
	case containsAny(lower, "not found", "no such file", "enoent", "404"):
		return "not_found"
	case containsAny(lower, "syntaxerror", "syntax error", "unexpected token", "parse error"):
		return "syntax"
	case containsAny(lower, "test failed", "assertion", "expected", "fail\n", "failures:"):
		return "test_failure"
	case containsAny(lower, "econnrefused", "timeout", "network", "dns", "unreachable"):
		return "network"
	case containsAny(lower, "conflict", "merge conflict", "diverged"):
		return "conflict"
	case containsAny(lower, "importerror", "modulenotfounderror", "cannot find module", "no module named"):
		return "import"
	default:
		return "generic"
	}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// Pattern is an agent.pattern.* value.
type Pattern struct {
	Type       string   `json:"type"`
	Tool       string   `json:"tool,omitempty"`
	Sequence   []string `json:"sequence,omitempty"`
	Count      int      `json:"count"`
	Confidence float64  `json:"confidence"`
}

// NamedPattern pairs a Pattern with the key segment it will be stored
// under (agent.pattern.<name>).
type NamedPattern struct {
	Name    string
	Pattern Pattern
}

const (
	frequentToolThreshold = 5
	sequenceThreshold     = 3
	workflowStreakMin     = 5
)

// ExtractPatterns implements spec.md §4.J's pattern mining: frequent
// single-tool usage, 2/3-step sequences, and contiguous successful
// streaks.
func ExtractPatterns(events []transcript.ToolEvent) []NamedPattern {
	var out []NamedPattern

	toolCounts := make(map[string]int)
	for _, ev := range events {
		toolCounts[ev.Tool]++
	}
	for tool, count := range toolCounts {
		if count >= frequentToolThreshold {
			out = append(out, NamedPattern{
				Name: "frequent_" + tool,
				Pattern: Pattern{
					Type: "frequent_tool", Tool: tool, Count: count,
					Confidence: confidenceForCount(count),
				},
			})
		}
	}

	out = append(out, sequencePatterns(events, 2)...)
	out = append(out, sequencePatterns(events, 3)...)
	out = append(out, workflowStreakPatterns(events)...)

	return out
}

func sequencePatterns(events []transcript.ToolEvent, length int) []NamedPattern {
	if len(events) < length {
		return nil
	}
	counts := make(map[string]int)
	sequences := make(map[string][]string)
	for i := 0; i+length <= len(events); i++ {
		var seq []string
		for j := 0; j < length; j++ {
			seq = append(seq, events[i+j].Tool)
		}
		key := strings.Join(seq, ">")
		counts[key]++
		sequences[key] = seq
	}

	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []NamedPattern
	ids := 0
	for _, key := range keys {
		count := counts[key]
		if count < sequenceThreshold {
			continue
		}
		ids++
		out = append(out, NamedPattern{
			Name: fmt.Sprintf("sequence_%d", ids),
			Pattern: Pattern{
				Type: "sequence", Sequence: sequences[key], Count: count,
				Confidence: confidenceForCount(count),
			},
		})
	}
	return out
}

func workflowStreakPatterns(events []transcript.ToolEvent) []NamedPattern {
	var out []NamedPattern
	streak := 0
	id := 0
	flush := func() {
		if streak >= workflowStreakMin {
			id++
			out = append(out, NamedPattern{
				Name: fmt.Sprintf("workflow_%d", id),
				Pattern: Pattern{
					Type: "workflow", Count: streak,
					Confidence: confidenceForCount(streak),
				},
			})
		}
		streak = 0
	}
	for _, ev := range events {
		if ev.IsError {
			flush()
			continue
		}
		streak++
	}
	flush()
	return out
}

// confidenceForCount is the step function shared by pattern and instinct
// confidence scoring, per spec.md §4.J: 2→0.5, 3→0.6, 5→0.7, 7→0.8, 10+→0.9.
func confidenceForCount(n int) float64 {
	switch {
	case n >= 10:
		return 0.9
	case n >= 7:
		return 0.8
	case n >= 5:
		return 0.7
	case n >= 3:
		return 0.6
	case n >= 2:
		return 0.5
	default:
		return 0.0
	}
}

// Instinct is an agent.instinct.<domain>.<id> value.
type Instinct struct {
	Trigger       string  `json:"trigger"`
	Action        string  `json:"action"`
	Confidence    float64 `json:"confidence"`
	Domain        string  `json:"domain"`
	EvidenceCount int     `json:"evidence_count"`
}

// NamedInstinct pairs an Instinct with the key it will be stored under.
type NamedInstinct struct {
	Key      string
	Instinct Instinct
}

const toolPreferenceThreshold = 10

// ExtractInstincts implements spec.md §4.J's instinct-distillation step
// over previously-mined cases and patterns, deduplicated by key and
// filtered by minConfidence.
func ExtractInstincts(cases []Case, patterns []NamedPattern, minConfidence float64) []NamedInstinct {
	seen := make(map[string]bool)
	var out []NamedInstinct

	add := func(ni NamedInstinct) {
		if ni.Instinct.Confidence < minConfidence {
			return
		}
		if seen[ni.Key] {
			return
		}
		seen[ni.Key] = true
		out = append(out, ni)
	}

	byErrorType := make(map[string][]Case)
	for _, c := range cases {
		byErrorType[c.ErrorType] = append(byErrorType[c.ErrorType], c)
	}
	for errType, group := range byErrorType {
		if len(group) < 2 {
			continue
		}
		add(NamedInstinct{
			Key: "agent.instinct.error." + errType,
			Instinct: Instinct{
				Trigger:       fmt.Sprintf("%s error encountered", errType),
				Action:        commonToolsAction(group),
				Confidence:    confidenceForCount(len(group)),
				Domain:        "error",
				EvidenceCount: len(group),
			},
		})
	}

	for _, np := range patterns {
		switch np.Pattern.Type {
		case "frequent_tool":
			if np.Pattern.Count >= toolPreferenceThreshold {
				add(NamedInstinct{
					Key: "agent.instinct.tool.prefer_" + np.Pattern.Tool,
					Instinct: Instinct{
						Trigger:       fmt.Sprintf("task requires %s", np.Pattern.Tool),
						Action:        "prefer " + np.Pattern.Tool,
						Confidence:    np.Pattern.Confidence,
						Domain:        "tool",
						EvidenceCount: np.Pattern.Count,
					},
				})
			}
		case "workflow":
			if np.Pattern.Count >= 2 {
				add(NamedInstinct{
					Key: "agent.instinct.workflow.common_sequence",
					Instinct: Instinct{
						Trigger:       "extended successful tool streak observed",
						Action:        "continue the current approach without re-planning",
						Confidence:    np.Pattern.Confidence,
						Domain:        "workflow",
						EvidenceCount: np.Pattern.Count,
					},
				})
			}
		case "sequence":
			if np.Pattern.Count >= 2 {
				add(NamedInstinct{
					Key: "agent.instinct.workflow.seq_" + np.Name,
					Instinct: Instinct{
						Trigger:       fmt.Sprintf("start of sequence %s", strings.Join(np.Pattern.Sequence, ">")),
						Action:        fmt.Sprintf("follow with %s", strings.Join(np.Pattern.Sequence[1:], ">")),
						Confidence:    np.Pattern.Confidence,
						Domain:        "workflow",
						EvidenceCount: np.Pattern.Count,
					},
				})
			}
		}
	}

	return out
}

// commonToolsAction names the tools used in at least half of group's cases
// plus the most recent solution description, per spec.md §4.J.
func commonToolsAction(group []Case) string {
	counts := make(map[string]int)
	for _, c := range group {
		for _, t := range c.Solution.Tools {
			counts[t]++
		}
	}
	threshold := (len(group) + 1) / 2
	var common []string
	for tool, n := range counts {
		if n >= threshold {
			common = append(common, tool)
		}
	}
	sort.Strings(common)

	mostRecent := group[len(group)-1].Solution.Description
	if len(common) == 0 {
		return mostRecent
	}
	return strings.Join(common, ", ") + ": " + mostRecent
}

// Store is the subset of factstore.Store the Learning Extractor writes
// instincts to and reads prior cases/patterns from.
type Store interface {
	ActivePrefix(ctx context.Context, prefix string) ([]factstore.Fact, error)
	Upsert(ctx context.Context, fact factstore.Fact) (factstore.UpsertResult, int64, error)
}

// CommitCases upserts newly-mined cases as agent.case.<error_type>.<id>
// facts, per spec.md §3's data model and §8 scenario 5 ("three
// agent.case.test_failure.* rows"). Each case gets a fresh id so distinct
// occurrences of the same error type accumulate as separate rows rather
// than overwriting one another.
func CommitCases(ctx context.Context, store Store, cases []Case, now time.Time) error {
	for _, c := range cases {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("learn: marshal case: %w", err)
		}
		errorType := c.ErrorType
		if errorType == "" {
			errorType = "generic"
		}
		key := fmt.Sprintf("agent.case.%s.%s", errorType, uuid.NewString())
		if _, _, err := store.Upsert(ctx, factstore.Fact{
			Key:       key,
			Value:     string(payload),
			Source:    "auto:case-extraction",
			StartTime: now,
		}); err != nil {
			return fmt.Errorf("learn: commit case %q: %w", key, err)
		}
	}
	return nil
}

// CommitPatterns upserts newly-mined patterns as agent.pattern.<name>
// facts. Pattern names (frequent_<tool>, sequence_<id>, workflow_<id>) are
// already derived deterministically from the mined data by
// ExtractPatterns, so re-mining the same transcript superseds the same
// row rather than duplicating it.
func CommitPatterns(ctx context.Context, store Store, patterns []NamedPattern, now time.Time) error {
	for _, np := range patterns {
		payload, err := json.Marshal(np.Pattern)
		if err != nil {
			return fmt.Errorf("learn: marshal pattern: %w", err)
		}
		key := "agent.pattern." + np.Name
		if _, _, err := store.Upsert(ctx, factstore.Fact{
			Key:       key,
			Value:     string(payload),
			Source:    "auto:pattern-extraction",
			StartTime: now,
		}); err != nil {
			return fmt.Errorf("learn: commit pattern %q: %w", key, err)
		}
	}
	return nil
}

// LoadCases reads previously-committed agent.case.* facts back out of the
// store for instinct distillation.
func LoadCases(ctx context.Context, store Store) ([]Case, error) {
	facts, err := store.ActivePrefix(ctx, "agent.case")
	if err != nil {
		return nil, err
	}
	var cases []Case
	for _, f := range facts {
		var c Case
		if err := json.Unmarshal([]byte(f.Value), &c); err != nil {
			continue
		}
		segments := strings.SplitN(f.Key, ".", 4)
		if len(segments) >= 3 {
			c.ErrorType = segments[2]
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// LoadPatterns reads previously-committed agent.pattern.* facts back out
// of the store for instinct distillation.
func LoadPatterns(ctx context.Context, store Store) ([]NamedPattern, error) {
	facts, err := store.ActivePrefix(ctx, "agent.pattern")
	if err != nil {
		return nil, err
	}
	var patterns []NamedPattern
	for _, f := range facts {
		var p Pattern
		if err := json.Unmarshal([]byte(f.Value), &p); err != nil {
			continue
		}
		segments := strings.SplitN(f.Key, ".", 3)
		name := f.Key
		if len(segments) == 3 {
			name = segments[2]
		}
		patterns = append(patterns, NamedPattern{Name: name, Pattern: p})
	}
	return patterns, nil
}
