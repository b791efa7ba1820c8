// Package search implements Hybrid Search (spec.md §4.G): fuse BM25 and
// cosine-similarity results with weighted scoring, apply verdict filters,
// and fall back to a recency listing when no query is given.
//
// Grounded on other_examples/jalfarocode-engram's sanitizeFTS query-quoting
// helper (generalized here into quoteFTSQuery) and the teacher's general
// "merge two ranked result sets by row identity" absence — the fusion
// itself is plain arithmetic over internal/factstore's two read paths.
package search

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/keygrammar"
)

// Config holds Hybrid Search's tunables, per spec.md §6.
type Config struct {
	VectorThreshold float64 // default 0.3
	VectorWeight    float64 // default 0.7
	BM25Weight      float64 // default 0.3
	BM25Bonus       float64 // default 0.15
	// TypeMappings maps a "type" verdict filter value to the set of key
	// prefixes it includes, per spec.md §6 `type_mappings`.
	TypeMappings map[string][]string
}

// DefaultConfig returns spec.md §4.G/§6's stated defaults.
func DefaultConfig() Config {
	return Config{
		VectorThreshold: 0.3,
		VectorWeight:    0.7,
		BM25Weight:      0.3,
		BM25Bonus:       0.15,
		TypeMappings: map[string][]string{
			"fact":     {"user", "project", "task", "system", "location", "tool", "environment", "model", "auth", "channel", "gateway", "plugin", "binding", "command", "meta"},
			"pref":     {"preference"},
			"entity":   {"entity"},
			"event":    {"event", "correction"},
			"agent":    {"agent", "workflow", "team"},
			"inferred": {"inferred"},
			"error":    {"error"},
		},
	}
}

// Query holds the union of inputs spec.md §4.G allows.
type Query struct {
	Prefix   string
	Keys     []string
	Text     string
	Semantic []float32

	Limit int

	// Verdict filters, per spec.md §4.G.
	SourceVerified bool
	Subject        string
	MaxAgeDays     int
	Type           string
}

// Result is a scored fact returned from Search.
type Result struct {
	Fact  factstore.Fact
	Score float64
}

// Store is the subset of factstore.Store Hybrid Search reads from.
type Store interface {
	ActiveEmbeddings(ctx context.Context) ([]factstore.Fact, error)
	SearchFTS(ctx context.Context, ftsQuery string, limit int) ([]factstore.Fact, []float64, error)
	ActiveAll(ctx context.Context) ([]factstore.Fact, error)
	ActivePrefix(ctx context.Context, prefix string) ([]factstore.Fact, error)
}

// Searcher runs Hybrid Search against a Store.
type Searcher struct {
	cfgMu sync.RWMutex
	cfg   Config
	store Store
}

// NewSearcher builds a Searcher.
func NewSearcher(cfg Config, store Store) *Searcher {
	return &Searcher{cfg: cfg, store: store}
}

// UpdateConfig atomically swaps the searcher's tunables (vector and BM25
// weights and the rest); searches started after it returns use them.
func (s *Searcher) UpdateConfig(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Searcher) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

const defaultLimit = 10

// Search implements spec.md §4.G's full algorithm.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	switch {
	case q.Prefix != "":
		return s.listResults(func() ([]factstore.Fact, error) { return s.store.ActivePrefix(ctx, q.Prefix) }, q, limit)
	case len(q.Keys) > 0:
		return s.keysResults(ctx, q, limit)
	case len(q.Semantic) > 0 || q.Text != "":
		return s.fusedSearch(ctx, q, limit)
	default:
		return s.listResults(func() ([]factstore.Fact, error) { return s.store.ActiveAll(ctx) }, q, limit)
	}
}

func (s *Searcher) keysResults(ctx context.Context, q Query, limit int) ([]Result, error) {
	wanted := make(map[string]bool, len(q.Keys))
	for _, k := range q.Keys {
		wanted[keygrammar.Normalize(k)] = true
	}
	all, err := s.store.ActiveAll(ctx)
	if err != nil {
		return nil, err
	}
	var matched []factstore.Fact
	for _, f := range all {
		if wanted[f.Key] {
			matched = append(matched, f)
		}
	}
	return s.listResults(func() ([]factstore.Fact, error) { return matched, nil }, q, limit)
}

func (s *Searcher) listResults(fetch func() ([]factstore.Fact, error), q Query, limit int) ([]Result, error) {
	facts, err := fetch()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(facts, func(i, j int) bool { return facts[i].StartTime.After(facts[j].StartTime) })

	typeMappings := s.config().TypeMappings

	var out []Result
	for _, f := range facts {
		if !passesVerdictFilters(f, q, typeMappings) {
			continue
		}
		out = append(out, Result{Fact: f, Score: 1})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fusedSearch implements spec.md §4.G's vector + BM25 weighted fusion.
func (s *Searcher) fusedSearch(ctx context.Context, q Query, limit int) ([]Result, error) {
	cfg := s.config()
	vectorScores := make(map[int64]float64)
	factByID := make(map[int64]factstore.Fact)

	if len(q.Semantic) > 0 {
		embedded, err := s.store.ActiveEmbeddings(ctx)
		if err != nil {
			return nil, err
		}
		type scored struct {
			fact  factstore.Fact
			score float64
		}
		var candidates []scored
		for _, f := range embedded {
			sim := cosineSimilarity(q.Semantic, f.Embedding)
			if sim >= cfg.VectorThreshold {
				candidates = append(candidates, scored{f, sim})
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
		if len(candidates) > 2*limit {
			candidates = candidates[:2*limit]
		}
		for _, c := range candidates {
			vectorScores[c.fact.RowID] = c.score
			factByID[c.fact.RowID] = c.fact
		}
	}

	bm25Scores := make(map[int64]float64)
	if q.Text != "" {
		ftsQuery := quoteFTSQuery(q.Text)
		facts, rawScores, err := s.store.SearchFTS(ctx, ftsQuery, 2*limit)
		if err != nil {
			return nil, err
		}
		normalized := normalizeBM25(rawScores)
		for i, f := range facts {
			bm25Scores[f.RowID] = normalized[i]
			factByID[f.RowID] = f
		}
	}

	ids := make(map[int64]bool)
	for id := range vectorScores {
		ids[id] = true
	}
	for id := range bm25Scores {
		ids[id] = true
	}

	var out []Result
	for id := range ids {
		f := factByID[id]
		if !passesVerdictFilters(f, q, cfg.TypeMappings) {
			continue
		}
		vScore, hasVector := vectorScores[id]
		bScore, hasBM25 := bm25Scores[id]

		combined := cfg.VectorWeight*vScore + cfg.BM25Weight*bScore
		if hasVector && hasBM25 && vScore >= cfg.VectorThreshold {
			combined += cfg.BM25Bonus * vScore
		}
		out = append(out, Result{Fact: f, Score: combined})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Fact.StartTime.After(out[j].Fact.StartTime)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func passesVerdictFilters(f factstore.Fact, q Query, typeMappings map[string][]string) bool {
	if q.SourceVerified && keygrammar.Category(f.Key) == "inferred" {
		return false
	}
	if q.Subject != "" && !strings.Contains(f.Key, q.Subject) {
		return false
	}
	if q.MaxAgeDays > 0 {
		cutoff := time.Now().Add(-time.Duration(q.MaxAgeDays) * 24 * time.Hour)
		if f.StartTime.Before(cutoff) {
			return false
		}
	}
	if q.Type != "" && q.Type != "all" {
		prefixes, ok := typeMappings[q.Type]
		if !ok {
			return false
		}
		category := keygrammar.Category(f.Key)
		matched := false
		for _, p := range prefixes {
			if category == p {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// normalizeBM25 rescales SQLite FTS5's bm25() scores (more negative is
// better) to [0,1] within the given result set, per spec.md §4.G step 2.
func normalizeBM25(raw []float64) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	min, max := raw[0], raw[0]
	for _, v := range raw {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	// bm25() is more negative for a better match; invert before scaling.
	for i, v := range raw {
		if max == min {
			out[i] = 1
			continue
		}
		out[i] = (max - v) / (max - min)
	}
	return out
}

var ftsOperatorRunes = regexp.MustCompile(`\s+`)

// quoteFTSQuery tokenizes q and quotes each token so FTS5 operator
// characters in user text (AND, OR, NOT, *, -, :, ^) are treated as
// literal text rather than query syntax.
func quoteFTSQuery(q string) string {
	tokens := ftsOperatorRunes.Split(strings.TrimSpace(q), -1)
	var quoted []string
	for _, t := range tokens {
		if t == "" {
			continue
		}
		t = strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
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
