// Package dedup implements the Semantic Deduper (spec.md §4.E): for each
// incoming timed fact, find existing active facts whose embeddings are
// similar enough to be the same underlying memory, then ask the LLM to
// decide whether to skip, merge, or create a new row.
//
// Grounded on the teacher's pkg/deck/facets_llm.go "call LLM, parse strict
// JSON, fall back on any error" shape — generalized from a session-facet
// summary decision to the skip/merge/create decision here, with the same
// never-lose-data fallback discipline (any failure resolves to create).
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/errs"
	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/llmprovider"
	"github.com/memoryforge/mnemo/internal/vectorindex"
	"github.com/memoryforge/mnemo/pkg/embeddings"
)

// Action is the deduper's decision for one incoming fact.
type Action string

const (
	ActionSkip   Action = "skip"
	ActionMerge  Action = "merge"
	ActionCreate Action = "create"
)

// Config holds the Semantic Deduper's tunables, per spec.md §4.E.
type Config struct {
	Enabled       bool
	Threshold     float64 // cosine similarity floor, default 0.85
	MaxCandidates int     // default 5
}

// DefaultConfig returns spec.md §4.E's stated defaults.
func DefaultConfig() Config {
	return Config{Enabled: true, Threshold: 0.85, MaxCandidates: 5}
}

// Decision is the outcome of deduplicating one incoming fact.
type Decision struct {
	Action Action
	Target string // set when Action == merge: the existing fact's key to write under
	Reason string
}

// Deduper combines an embedder, the fact store's active-embedding set, and
// an LLM decision call.
type Deduper struct {
	cfgMu    sync.RWMutex
	cfg      Config
	embedder embeddings.Embedder
	call     llmprovider.CallFunc
	index    vectorindex.Index
	log      *zap.Logger
}

// NewDeduper builds a Deduper. A nil call is only valid when cfg.Enabled
// is false. Candidate lookup runs against the active set passed to Decide
// unless WithIndex has been called.
func NewDeduper(cfg Config, embedder embeddings.Embedder, call llmprovider.CallFunc) *Deduper {
	return &Deduper{cfg: cfg, embedder: embedder, call: call, log: zap.NewNop()}
}

// UpdateConfig atomically swaps the deduper's tunables; Decide calls made
// after it returns use the new threshold and candidate limit.
func (d *Deduper) UpdateConfig(cfg Config) {
	d.cfgMu.Lock()
	d.cfg = cfg
	d.cfgMu.Unlock()
}

func (d *Deduper) config() Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// WithIndex switches candidate lookup to an external vector index
// (vector_store.provider=chroma|qdrant) instead of the in-process cosine
// scan over the active set Decide is given. A nil index restores the
// default in-process behavior.
func (d *Deduper) WithIndex(index vectorindex.Index, log *zap.Logger) *Deduper {
	d.index = index
	if log != nil {
		d.log = log
	}
	return d
}

type candidate struct {
	fact       factstore.Fact
	similarity float64
}

// Decide implements spec.md §4.E's full algorithm. active is the current
// set of active, embedded facts (typically factstore.Store.ActiveEmbeddings),
// fetched once per pipeline run by the caller rather than per fact.
func (d *Deduper) Decide(ctx context.Context, key, value string, active []factstore.Fact) (Decision, []float32, error) {
	if !d.config().Enabled {
		return Decision{Action: ActionCreate}, nil, nil
	}

	vector, err := d.embedder.Embed(ctx, key+": "+value)
	if err != nil {
		// An embedding failure here is a teacher-pattern "never lose a
		// fact": fall through to create without penalizing the pipeline.
		return Decision{Action: ActionCreate, Reason: "embedding failed, defaulting to create"}, nil, nil
	}

	candidates := d.findCandidates(ctx, vector, active)
	if len(candidates) == 0 {
		return Decision{Action: ActionCreate}, vector, nil
	}

	decision, err := d.askLLM(ctx, key, value, candidates)
	if err != nil {
		// spec.md §4.E step 5: any parse error, timeout, or transport
		// failure falls back to create.
		return Decision{Action: ActionCreate, Reason: fmt.Sprintf("dedup decision failed: %v", err)}, vector, nil
	}
	return decision, vector, nil
}

// findCandidates queries the external index when one is configured,
// falling back to the in-process scan over active on any index error so
// a flaky external store never blocks the pipeline (spec.md §4.H's
// fallback-over-failure discipline).
func (d *Deduper) findCandidates(ctx context.Context, vector []float32, active []factstore.Fact) []candidate {
	cfg := d.config()

	if d.index == nil {
		return topCandidates(vector, active, cfg.Threshold, cfg.MaxCandidates)
	}

	hits, err := d.index.Query(ctx, vector, cfg.MaxCandidates)
	if err != nil {
		d.log.Warn("dedup: vector index query failed, falling back to in-process scan", zap.Error(err))
		return topCandidates(vector, active, cfg.Threshold, cfg.MaxCandidates)
	}

	out := make([]candidate, 0, len(hits))
	for _, h := range hits {
		if h.Similarity < cfg.Threshold {
			continue
		}
		out = append(out, candidate{
			fact:       factstore.Fact{Key: h.Key, Value: h.Value},
			similarity: h.Similarity,
		})
	}
	return out
}

// RecordCommitted writes a freshly committed fact's embedding into the
// external vector index, if one is configured. Best effort: a write
// failure is logged, never surfaced, since the Fact Store remains the
// source of truth.
func (d *Deduper) RecordCommitted(ctx context.Context, rowID int64, key, value string, embedding []float32) {
	if d.index == nil || rowID <= 0 || len(embedding) == 0 {
		return
	}
	if err := d.index.Upsert(ctx, vectorindex.Record{RowID: rowID, Key: key, Value: value, Embedding: embedding}); err != nil {
		d.log.Warn("dedup: vector index upsert failed", zap.Int64("row_id", rowID), zap.Error(err))
	}
}

func topCandidates(vector []float32, active []factstore.Fact, threshold float64, maxCandidates int) []candidate {
	var out []candidate
	for _, f := range active {
		if len(f.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(vector, f.Embedding)
		if sim >= threshold {
			out = append(out, candidate{fact: f, similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].similarity > out[j].similarity })
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type llmDecision struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (d *Deduper) askLLM(ctx context.Context, key, value string, candidates []candidate) (Decision, error) {
	response, err := d.call(ctx, buildDecisionPrompt(key, value, candidates))
	if err != nil {
		return Decision{}, &errs.TransientExternal{Op: "dedup.askLLM", Err: err}
	}

	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end < 0 || end < start {
		return Decision{}, &errs.DataMalformed{Op: "dedup.askLLM", Err: fmt.Errorf("no JSON object found in response")}
	}

	var parsed llmDecision
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return Decision{}, &errs.DataMalformed{Op: "dedup.askLLM", Err: fmt.Errorf("parsing decision: %w", err)}
	}

	switch Action(parsed.Action) {
	case ActionSkip:
		return Decision{Action: ActionSkip, Reason: parsed.Reason}, nil
	case ActionMerge:
		if parsed.Target == "" {
			return Decision{}, &errs.DataMalformed{Op: "dedup.askLLM", Err: fmt.Errorf("merge decision missing target")}
		}
		return Decision{Action: ActionMerge, Target: parsed.Target, Reason: parsed.Reason}, nil
	case ActionCreate:
		return Decision{Action: ActionCreate, Reason: parsed.Reason}, nil
	default:
		return Decision{}, &errs.DataMalformed{Op: "dedup.askLLM", Err: fmt.Errorf("unrecognized action %q", parsed.Action)}
	}
}

func buildDecisionPrompt(key, value string, candidates []candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new candidate fact is being considered for storage.\n\n")
	fmt.Fprintf(&b, "Candidate: key=%q value=%q\n\n", key, value)
	fmt.Fprintf(&b, "Existing facts with similar meaning:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- key=%q value=%q similarity=%.3f\n", c.fact.Key, c.fact.Value, c.similarity)
	}
	b.WriteString(`
Decide whether the candidate should be:
- "skip": it says nothing new beyond an existing fact.
- "merge": it updates or refines an existing fact (set "target" to that fact's key).
- "create": it is genuinely new and should be stored under its own key.

Return ONLY a JSON object: {"action": "skip"|"merge"|"create", "target"?: "<existing key>", "reason"?: "<short reason>"}.
Do not include any prose, explanation, or markdown code fences.`)
	return b.String()
}
