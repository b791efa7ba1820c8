// Package engine implements the wire-agnostic core behind the
// Query/Mutation API (spec.md §4.L): summary, search, store, and instinct
// management. Transports (internal/api, internal/mcpserver, cmd/mnemo)
// call an Engine directly; none of them re-implement its logic.
//
// New package — spec.md §4.L is the teacher's domain has no analog for
// "a small set of ops used by hooks, CLIs, and RPC transports" as a
// distinct layer (the teacher wires its store straight into fiber
// handlers). Assembled from the already-built collaborators
// (internal/search, internal/factstore, internal/learn,
// internal/aggregate) rather than invented from scratch.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/memoryforge/mnemo/internal/aggregate"
	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/keygrammar"
	"github.com/memoryforge/mnemo/internal/learn"
	"github.com/memoryforge/mnemo/internal/search"
	"github.com/memoryforge/mnemo/internal/transcript"
	"github.com/memoryforge/mnemo/pkg/embeddings"
)

// AggregateResult carries the rendered outputs of an Aggregate call —
// the digest, one daily log, one week's per-category snapshot plus
// index, and the rolling per-category files plus their own index — for
// a caller to persist with aggregate.Writer.
type AggregateResult struct {
	Digest       aggregate.Digest
	DigestJSON   []byte
	DailyDate    time.Time
	DailyLog     string
	WeekYear     int
	WeekNumber   int
	WeeklyFiles  map[string]string // filename -> content, includes "index.md"
	RollingFiles map[string]string // filename -> content, excludes "index.md"
	RollingIndex string
}

// Store is the subset of *factstore.Store the engine needs, beyond what
// internal/search.Store and internal/learn.Store already declare.
type Store interface {
	search.Store
	learn.Store
	Upsert(ctx context.Context, fact factstore.Fact) (factstore.UpsertResult, int64, error)
	Delete(ctx context.Context, key string) error
	History(ctx context.Context, key string) ([]factstore.Fact, error)
	SetEmbedding(ctx context.Context, rowID int64, embedding []float32) error
}

// Engine assembles the built collaborators behind the Query/Mutation API.
type Engine struct {
	store    Store
	searcher *search.Searcher
	embedder embeddings.Embedder
	now      func() time.Time
}

// New builds an Engine. now defaults to time.Now if nil (tests may
// override it for deterministic digests).
func New(store Store, embedder embeddings.Embedder, searchCfg search.Config, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:    store,
		searcher: search.NewSearcher(searchCfg, store),
		embedder: embedder,
		now:      now,
	}
}

// Summary implements the `summary` op: a compact one-line digest.
func (e *Engine) Summary(ctx context.Context) (string, error) {
	facts, err := e.store.ActiveAll(ctx)
	if err != nil {
		return "", fmt.Errorf("engine: summary: %w", err)
	}
	d := aggregate.BuildDigest(facts, e.now())
	return d.Summary, nil
}

// Aggregate implements the Aggregator (spec.md §4.I): it reads the
// active fact set and produces the digest, the current day's log, the
// current ISO week's snapshot, and the rolling per-category files.
func (e *Engine) Aggregate(ctx context.Context) (AggregateResult, error) {
	now := e.now()

	facts, err := e.store.ActiveAll(ctx)
	if err != nil {
		return AggregateResult{}, fmt.Errorf("engine: aggregate: %w", err)
	}

	digest := aggregate.BuildDigest(facts, now)
	digestJSON, err := aggregate.RenderDigestJSON(digest)
	if err != nil {
		return AggregateResult{}, fmt.Errorf("engine: aggregate: rendering digest: %w", err)
	}

	weekYear, weekNumber := aggregate.ISOWeekOf(now)
	weeklyFiles := aggregate.WeeklySnapshot(facts, weekYear, weekNumber)

	rollingFiles, err := aggregate.RollingTopicFiles(facts, func(key string) ([]factstore.Fact, error) {
		return e.store.History(ctx, key)
	})
	if err != nil {
		return AggregateResult{}, fmt.Errorf("engine: aggregate: rolling topics: %w", err)
	}

	rollingCounts := make(map[string]int, len(rollingFiles))
	for name := range rollingFiles {
		rollingCounts[strings.TrimSuffix(name, ".md")] = digest.Categories[strings.TrimSuffix(name, ".md")].Count
	}

	return AggregateResult{
		Digest:       digest,
		DigestJSON:   digestJSON,
		DailyDate:    now,
		DailyLog:     aggregate.DailyLog(facts, now),
		WeekYear:     weekYear,
		WeekNumber:   weekNumber,
		WeeklyFiles:  weeklyFiles,
		RollingFiles: rollingFiles,
		RollingIndex: aggregate.IndexFile(rollingCounts),
	}, nil
}

// SearchRequest is the union of inputs the `search` op accepts, per
// spec.md §4.L. Text is embedded (if an embedder is configured) to drive
// the vector half of Hybrid Search alongside its BM25 half.
type SearchRequest struct {
	Prefix         string
	Keys           []string
	Text           string
	Limit          int
	SourceVerified bool
	Subject        string
	MaxAgeDays     int
	Type           string
}

// SearchResultItem is the `{key, value, score?}` shape spec.md §4.L
// returns from `search`.
type SearchResultItem struct {
	Key   string
	Value string
	Score float64
}

// Search implements the `search` op.
func (e *Engine) Search(ctx context.Context, req SearchRequest) ([]SearchResultItem, error) {
	q := search.Query{
		Prefix:         req.Prefix,
		Keys:           req.Keys,
		Text:           req.Text,
		Limit:          req.Limit,
		SourceVerified: req.SourceVerified,
		Subject:        req.Subject,
		MaxAgeDays:     req.MaxAgeDays,
		Type:           req.Type,
	}

	if req.Text != "" && e.embedder != nil {
		vector, err := e.embedder.Embed(ctx, req.Text)
		if err == nil {
			q.Semantic = vector
		}
		// An embedding failure degrades to BM25-only search rather than
		// failing the whole request — spec.md §4.G treats vector search
		// as one of two fused signals, not a hard dependency.
	}

	results, err := e.searcher.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("engine: search: %w", err)
	}

	out := make([]SearchResultItem, len(results))
	for i, r := range results {
		out[i] = SearchResultItem{Key: r.Fact.Key, Value: r.Fact.Value, Score: r.Score}
	}
	return out, nil
}

// StoreResult confirms a `store` mutation, per spec.md §4.L.
type StoreResult struct {
	Key    string
	Result factstore.UpsertResult
	RowID  int64
}

// Store implements the `store` op: upsert then embed.
func (e *Engine) Store(ctx context.Context, key, value string) (StoreResult, error) {
	normalized := keygrammar.Normalize(key)
	if !keygrammar.Validate(normalized) {
		return StoreResult{}, fmt.Errorf("engine: store: invalid key %q", key)
	}

	result, rowID, err := e.store.Upsert(ctx, factstore.Fact{
		Key:       normalized,
		Value:     value,
		Source:    "mcp:store",
		StartTime: e.now(),
	})
	if err != nil {
		return StoreResult{}, fmt.Errorf("engine: store: %w", err)
	}

	if e.embedder != nil && rowID > 0 {
		if vector, err := e.embedder.Embed(ctx, normalized+": "+value); err == nil {
			_ = e.store.SetEmbedding(ctx, rowID, vector)
		}
	}

	return StoreResult{Key: normalized, Result: result, RowID: rowID}, nil
}

// InstinctItem is one instinct record as returned by list_instincts /
// show_instinct.
type InstinctItem struct {
	Key      string
	Instinct learn.Instinct
}

// ListInstincts implements `list_instincts`.
func (e *Engine) ListInstincts(ctx context.Context) ([]InstinctItem, error) {
	facts, err := e.store.ActivePrefix(ctx, "agent.instinct")
	if err != nil {
		return nil, fmt.Errorf("engine: list_instincts: %w", err)
	}
	items := make([]InstinctItem, 0, len(facts))
	for _, f := range facts {
		var inst learn.Instinct
		if unmarshalErr := unmarshalInstinct(f.Value, &inst); unmarshalErr != nil {
			continue
		}
		items = append(items, InstinctItem{Key: f.Key, Instinct: inst})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Instinct.Confidence > items[j].Instinct.Confidence })
	return items, nil
}

// ShowInstinct implements `show_instinct`.
func (e *Engine) ShowInstinct(ctx context.Context, key string) (InstinctItem, error) {
	fact, err := e.activeFact(ctx, key)
	if err != nil {
		return InstinctItem{}, err
	}
	var inst learn.Instinct
	if err := unmarshalInstinct(fact.Value, &inst); err != nil {
		return InstinctItem{}, fmt.Errorf("engine: show_instinct: %w", err)
	}
	return InstinctItem{Key: fact.Key, Instinct: inst}, nil
}

// DeleteInstinct implements `delete_instinct`: closes the active row
// (spec.md §3's lifecycle treats deletion as setting end_time, never a
// hard delete).
func (e *Engine) DeleteInstinct(ctx context.Context, key string) error {
	if err := e.store.Delete(ctx, keygrammar.Normalize(key)); err != nil {
		return fmt.Errorf("engine: delete_instinct: %w", err)
	}
	return nil
}

// ExtractInstinctsRequest carries the `extract_instincts` op's
// parameters, per spec.md §4.L.
type ExtractInstinctsRequest struct {
	MinConfidence float64
	Store         bool // when true, upsert generated instincts; otherwise a dry-run
	Transcripts   []string
}

// ExtractInstincts implements `extract_instincts`: mine cases/patterns
// from the given transcripts plus the store's own history, distill
// instincts, and conditionally persist them.
func (e *Engine) ExtractInstincts(ctx context.Context, req ExtractInstinctsRequest) ([]learn.NamedInstinct, error) {
	minConfidence := req.MinConfidence
	if minConfidence <= 0 {
		minConfidence = 0.5
	}

	var minedCases []learn.Case
	var minedPatterns []learn.NamedPattern
	for _, path := range req.Transcripts {
		events, err := transcript.ParseToolEvents(path)
		if err != nil {
			continue
		}
		minedCases = append(minedCases, learn.ExtractCases(events, path)...)
		minedPatterns = append(minedPatterns, learn.ExtractPatterns(events)...)
	}

	// Persist newly-mined cases/patterns as agent.case.*/agent.pattern.*
	// facts before distilling instincts from them, per spec.md §3's data
	// model and §8 scenario 5. A dry run (req.Store == false) mines and
	// distills without writing anything back.
	if req.Store {
		if err := learn.CommitCases(ctx, e.store, minedCases, e.now()); err != nil {
			return nil, fmt.Errorf("engine: extract_instincts: %w", err)
		}
		if err := learn.CommitPatterns(ctx, e.store, minedPatterns, e.now()); err != nil {
			return nil, fmt.Errorf("engine: extract_instincts: %w", err)
		}
	}

	priorCases, err := learn.LoadCases(ctx, e.store)
	if err != nil {
		return nil, fmt.Errorf("engine: extract_instincts: loading prior cases: %w", err)
	}
	priorPatterns, err := learn.LoadPatterns(ctx, e.store)
	if err != nil {
		return nil, fmt.Errorf("engine: extract_instincts: loading prior patterns: %w", err)
	}

	var cases []learn.Case
	var patterns []learn.NamedPattern
	if req.Store {
		// minedCases/minedPatterns were just committed, so priorCases and
		// priorPatterns (freshly reloaded from the store) already contain
		// them — appending minedCases again would double-count evidence.
		cases = priorCases
		patterns = priorPatterns
	} else {
		cases = append(append([]learn.Case{}, minedCases...), priorCases...)
		patterns = append(append([]learn.NamedPattern{}, minedPatterns...), priorPatterns...)
	}

	instincts := learn.ExtractInstincts(cases, patterns, minConfidence)

	if req.Store {
		for _, ni := range instincts {
			payload, err := marshalInstinct(ni.Instinct)
			if err != nil {
				continue
			}
			_, _, _ = e.store.Upsert(ctx, factstore.Fact{
				Key:       ni.Key,
				Value:     payload,
				Source:    "auto:instinct-extraction",
				StartTime: e.now(),
			})
		}
	}

	return instincts, nil
}

func unmarshalInstinct(value string, out *learn.Instinct) error {
	return json.Unmarshal([]byte(value), out)
}

func marshalInstinct(inst learn.Instinct) (string, error) {
	b, err := json.Marshal(inst)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (e *Engine) activeFact(ctx context.Context, key string) (factstore.Fact, error) {
	facts, err := e.store.ActivePrefix(ctx, keygrammar.Normalize(key))
	if err != nil {
		return factstore.Fact{}, fmt.Errorf("engine: lookup %q: %w", key, err)
	}
	for _, f := range facts {
		if f.Key == keygrammar.Normalize(key) {
			return f, nil
		}
	}
	return factstore.Fact{}, fmt.Errorf("engine: no active fact for key %q", key)
}
