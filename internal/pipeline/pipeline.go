// Package pipeline implements the Pipeline Orchestrator (spec.md §4.H): it
// drives a source transcript through Normalize→Filter→Chunk→Extract→
// Align→Dedup→Commit→Embed, enforcing idempotency via a processed-source
// ledger and structured logging per stage.
//
// Grounded on pkg/deck/facets_worker.go's bounded-concurrency background
// runner (Run, sem-channel worker pool, atomic progress counters) and
// pkg/deck/facets.go's per-item ledger-check-before-processing discipline.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/memoryforge/mnemo/internal/concurrency"
	"github.com/memoryforge/mnemo/internal/dedup"
	"github.com/memoryforge/mnemo/internal/eventstream"
	"github.com/memoryforge/mnemo/internal/eventstream/nop"
	"github.com/memoryforge/mnemo/internal/extract"
	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/ledger"
	"github.com/memoryforge/mnemo/internal/noise"
	"github.com/memoryforge/mnemo/internal/temporal"
	"github.com/memoryforge/mnemo/internal/transcript"
	"github.com/memoryforge/mnemo/pkg/embeddings"
)

// Outcome is the terminal state of a source in the pipeline's state
// machine (spec.md §4.H).
type Outcome string

const (
	Done     Outcome = "done"
	Skipped  Outcome = "skipped"
	Failed   Outcome = "failed"
)

// Result reports what happened to one source file.
type Result struct {
	SourceID string
	Outcome  Outcome
	Reason   string
	Facts    int
	Warnings []string
}

// Config holds the caps and guards named in spec.md §4.H.
type Config struct {
	MaxSessionsPerRun int
	MinFreeMB         int
	StageTimeout      time.Duration
	Dedup             dedup.Config
}

// DefaultConfig returns the spec's named defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessionsPerRun: 50,
		MinFreeMB:         300,
		StageTimeout:      45 * time.Second,
		Dedup:             dedup.DefaultConfig(),
	}
}

// Store is the subset of *factstore.Store the pipeline commits facts
// through.
type Store interface {
	Upsert(ctx context.Context, fact factstore.Fact) (factstore.UpsertResult, int64, error)
	ApplyMerge(ctx context.Context, targetKey string, fact factstore.Fact) (factstore.UpsertResult, int64, error)
	ActiveEmbeddings(ctx context.Context) ([]factstore.Fact, error)
	SetEmbedding(ctx context.Context, rowID int64, embedding []float32) error
}

// Pipeline wires every built stage package into the state machine.
type Pipeline struct {
	cfg      Config
	store    Store
	ledger   *ledger.Ledger
	gate     *concurrency.Gate
	extractor *extract.Extractor
	deduper  *dedup.Deduper
	embedder embeddings.Embedder
	noiseCfg noise.Config
	log      *zap.Logger
	publisher eventstream.Publisher

	processed atomic.Int64
	total     atomic.Int64
}

// New constructs a Pipeline from its already-built collaborators. The
// publication sink defaults to a no-op; see WithPublisher.
func New(cfg Config, store Store, led *ledger.Ledger, gate *concurrency.Gate, ex *extract.Extractor, dd *dedup.Deduper, emb embeddings.Embedder, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		ledger:    led,
		gate:      gate,
		extractor: ex,
		deduper:   dd,
		embedder:  emb,
		noiseCfg:  noise.DefaultConfig(),
		log:       log,
		publisher: nop.NewPublisher(),
	}
}

// WithPublisher swaps in an external publication sink (e.g.
// internal/eventstream/kafka) for committed-fact notifications. The
// pipeline never blocks a commit on publish failure; see publishCommitted.
func (p *Pipeline) WithPublisher(pub eventstream.Publisher) *Pipeline {
	if pub != nil {
		p.publisher = pub
	}
	return p
}

// Progress reports how many of the currently running batch's sources have
// been processed, mirroring pkg/deck/facets_worker.go's Progress().
func (p *Pipeline) Progress() (done, total int) {
	return int(p.processed.Load()), int(p.total.Load())
}

// Backfill processes every .jsonl file under dir in sorted order, checking
// RAM before each file and stopping once MaxSessionsPerRun is reached.
func (p *Pipeline) Backfill(ctx context.Context, dir string) ([]Result, error) {
	handle, err := p.gate.Acquire("pipeline-backfill")
	if err != nil {
		return nil, fmt.Errorf("pipeline: acquiring run lock: %w", err)
	}
	defer handle.Release()

	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("pipeline: globbing %s: %w", dir, err)
	}
	sort.Strings(matches)

	if len(matches) > p.cfg.MaxSessionsPerRun {
		p.log.Warn("pipeline: capping backfill batch", zap.Int("found", len(matches)), zap.Int("cap", p.cfg.MaxSessionsPerRun))
		matches = matches[:p.cfg.MaxSessionsPerRun]
	}

	p.total.Store(int64(len(matches)))
	p.processed.Store(0)

	const maxConcurrency = 2
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]Result, 0, len(matches))

	for _, path := range matches {
		if ctx.Err() != nil {
			break
		}
		if ok, freeMB, err := concurrency.CheckRAM(p.cfg.MinFreeMB); err == nil && !ok {
			p.log.Warn("pipeline: low memory, stopping backfill", zap.Int("free_mb", freeMB))
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			r := p.ProcessFile(ctx, path)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			p.processed.Add(1)
		}(path)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].SourceID < results[j].SourceID })
	return results, nil
}

// ProcessFile runs one source through the full state machine.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) Result {
	sourceID := "session:" + filepath.Base(path)
	log := p.log.With(zap.String("source", sourceID))

	info, err := statMTime(path)
	if err != nil {
		log.Error("pipeline: stat failed", zap.Error(err))
		return Result{SourceID: sourceID, Outcome: Failed, Reason: err.Error()}
	}

	if p.ledger.Processed(sourceID, info) {
		log.Info("pipeline: skipping already-processed source")
		return Result{SourceID: sourceID, Outcome: Skipped, Reason: "already processed"}
	}

	messages, err := transcript.Parse(path)
	if err != nil {
		log.Error("pipeline: normalize failed", zap.Error(err))
		return Result{SourceID: sourceID, Outcome: Failed, Reason: err.Error()}
	}
	if len(messages) == 0 {
		log.Info("pipeline: empty transcript, skipping")
		return Result{SourceID: sourceID, Outcome: Skipped, Reason: "empty transcript"}
	}

	var kept []transcript.Message
	for _, m := range messages {
		if !noise.IsNoise(p.noiseCfg, m.Text) {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		log.Info("pipeline: all messages classified as noise, skipping")
		return Result{SourceID: sourceID, Outcome: Skipped, Reason: "all noise"}
	}

	var raw []temporal.RawFact
	var warnings []string
	for _, m := range kept {
		stageCtx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
		// Extract adds its own "session:" prefix; pass the bare filename so
		// the fact's Source isn't double-prefixed against sourceID above.
		facts, warns, err := p.extractor.Extract(stageCtx, m.Text, filepath.Base(path), m.Timestamp)
		cancel()
		if err != nil {
			log.Error("pipeline: extract failed", zap.Error(err))
			return Result{SourceID: sourceID, Outcome: Failed, Reason: err.Error()}
		}
		warnings = append(warnings, warns...)
		for _, f := range facts {
			raw = append(raw, temporal.RawFact{
				Key:              f.Key,
				Value:            fmt.Sprint(f.Value),
				Source:           f.Source,
				MessageTimestamp: f.MessageTimestamp,
			})
		}
	}

	aligned := temporal.Align(raw)

	committed := 0
	for _, tf := range aligned {
		if noise.IsNoise(p.noiseCfg, tf.Key+": "+tf.Value) {
			continue
		}

		active, err := p.store.ActiveEmbeddings(ctx)
		if err != nil {
			log.Error("pipeline: loading active embeddings for dedup failed", zap.Error(err))
			return Result{SourceID: sourceID, Outcome: Failed, Reason: err.Error()}
		}

		decision, vector, err := p.deduper.Decide(ctx, tf.Key, tf.Value, active)
		if err != nil {
			log.Error("pipeline: dedup failed", zap.Error(err))
			return Result{SourceID: sourceID, Outcome: Failed, Reason: err.Error()}
		}

		fact := factstore.Fact{
			Key:       tf.Key,
			Value:     tf.Value,
			Source:    tf.Source,
			StartTime: tf.StartTime,
			EndTime:   tf.EndTime,
		}

		switch decision.Action {
		case dedup.ActionSkip:
			continue
		case dedup.ActionMerge:
			if _, rowID, err := p.store.ApplyMerge(ctx, decision.Target, fact); err == nil {
				committed++
				p.embedRow(ctx, rowID, vector, log)
				p.deduper.RecordCommitted(ctx, rowID, decision.Target, fact.Value, vector)
				p.publishCommitted(ctx, sourceID, "merge", decision.Target, fact.Value, rowID, log)
			} else {
				log.Warn("pipeline: merge commit failed", zap.Error(err))
			}
		default:
			if _, rowID, err := p.store.Upsert(ctx, fact); err == nil {
				committed++
				p.embedRow(ctx, rowID, vector, log)
				p.deduper.RecordCommitted(ctx, rowID, fact.Key, fact.Value, vector)
				p.publishCommitted(ctx, sourceID, "create", fact.Key, fact.Value, rowID, log)
			} else {
				log.Warn("pipeline: upsert commit failed", zap.Error(err))
			}
		}
	}

	if err := p.ledger.Record(sourceID, info); err != nil {
		log.Error("pipeline: ledger record failed", zap.Error(err))
		return Result{SourceID: sourceID, Outcome: Failed, Reason: err.Error(), Facts: committed, Warnings: warnings}
	}

	log.Info("pipeline: source done", zap.Int("facts_committed", committed), zap.Int("warnings", len(warnings)))
	return Result{SourceID: sourceID, Outcome: Done, Facts: committed, Warnings: warnings}
}

// embedRow embeds a freshly committed fact if a vector wasn't already
// computed during dedup (dedup only embeds when there was something to
// compare against).
func (p *Pipeline) embedRow(ctx context.Context, rowID int64, vector []float32, log *zap.Logger) {
	if rowID <= 0 {
		return
	}
	if len(vector) == 0 {
		return
	}
	if err := p.store.SetEmbedding(ctx, rowID, vector); err != nil {
		log.Warn("pipeline: embed failed", zap.Int64("row_id", rowID), zap.Error(err))
	}
}

// publishCommitted notifies the configured publication sink of a
// committed fact. Publish failures are logged and otherwise ignored: the
// Fact Store commit has already succeeded and is never rolled back for a
// downstream sink's sake.
func (p *Pipeline) publishCommitted(ctx context.Context, sourceID, action, key, value string, rowID int64, log *zap.Logger) {
	err := p.publisher.PublishFactCommitted(ctx, &eventstream.FactCommittedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeFactCommitted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now(),
		SourceID:      sourceID,
		Key:           key,
		Value:         value,
		Action:        action,
		RowID:         rowID,
	})
	if err != nil {
		log.Warn("pipeline: publishing fact-committed event failed", zap.Error(err))
	}
}

func statMTime(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.ModTime().UnixMilli(), nil
}
