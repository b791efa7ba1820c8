// Package pipelinecmder provides the `mnemo pipeline` command for driving
// recorded sessions through the pipeline orchestrator.
package pipelinecmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/concurrency"
	"github.com/memoryforge/mnemo/internal/dedup"
	eventstreamutils "github.com/memoryforge/mnemo/internal/eventstream/utils"
	"github.com/memoryforge/mnemo/internal/extract"
	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/keygrammar"
	"github.com/memoryforge/mnemo/internal/ledger"
	"github.com/memoryforge/mnemo/internal/llmprovider"
	"github.com/memoryforge/mnemo/internal/pipeline"
	vectorindexutils "github.com/memoryforge/mnemo/internal/vectorindex/utils"
	"github.com/memoryforge/mnemo/pkg/cliui"
	"github.com/memoryforge/mnemo/pkg/config"
	"github.com/memoryforge/mnemo/pkg/credentials"
	"github.com/memoryforge/mnemo/pkg/dotdir"
	"github.com/memoryforge/mnemo/pkg/embeddings/ollama"
	embeddingutils "github.com/memoryforge/mnemo/pkg/embeddings/utils"
	"github.com/memoryforge/mnemo/pkg/logger"
)

type runCommander struct {
	dir        string
	mnemoDir   string
	dimensions uint

	maxSessions int
	minFreeMB   int
	stageTimeout time.Duration
	lockStaleTTL time.Duration
	dedupEnabled bool
	dedupThreshold float64

	embedProvider string
	embedBaseURL  string
	embedModel    string

	llmProvider string
	llmModel    string
	llmAPIKey   string
	llmBaseURL  string

	vectorStoreProvider string
	vectorStoreURL      string
	vectorStoreAPIKey   string

	eventStreamProvider string
	kafkaBrokers        []string
	kafkaTopic          string

	debug  bool
	logger *zap.Logger
}

const runLongDesc string = `Run the pipeline orchestrator over a directory of session transcripts.

Each *.jsonl file is normalized, filtered, chunked, extracted, aligned,
deduplicated, committed, and embedded, in that order. Sessions already
recorded in the processed-source ledger are skipped. A stage error fails
only that session; it is retried on the next run.

Examples:
  mnemo pipeline run ./sessions
  mnemo pipeline run ./sessions --max-sessions 20 --min-free-mb 500
  mnemo pipeline run ./sessions --embed-provider ollama --embed-model nomic-embed-text`

const runShortDesc string = "Run the pipeline over a session directory"

func NewPipelineCmd() *cobra.Command {
	cmder := &runCommander{}

	root := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the memory consolidation pipeline",
	}

	run := &cobra.Command{
		Use:   "run <dir>",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			// spec.md §9: the category enumeration is configuration, not
			// code; config.toml's categories list (if set) replaces the
			// compiled-in default before any extraction runs.
			keygrammar.UpdateCategories(cfg.Categories)

			// CLI flags win over config.toml; config.toml wins over the
			// flag's own compiled-in default (mirrors the teacher's
			// proxycmder.NewProxyCmd PreRunE fallback pattern).
			if !cmd.Flags().Changed("max-sessions") {
				cmder.maxSessions = cfg.Guards.MaxSessionsPerRun
			}
			if !cmd.Flags().Changed("min-free-mb") {
				cmder.minFreeMB = cfg.Guards.MinFreeMB
			}
			if !cmd.Flags().Changed("stage-timeout") {
				cmder.stageTimeout = time.Duration(cfg.Guards.StageTimeoutSeconds) * time.Second
			}
			if !cmd.Flags().Changed("lock-stale-ttl") {
				cmder.lockStaleTTL = time.Duration(cfg.Lock.StaleTTLSeconds) * time.Second
			}
			if !cmd.Flags().Changed("dedup") {
				cmder.dedupEnabled = cfg.Dedup.Enabled
			}
			if !cmd.Flags().Changed("dedup-threshold") {
				cmder.dedupThreshold = cfg.Dedup.SimilarityThreshold
			}
			if !cmd.Flags().Changed("dimensions") {
				cmder.dimensions = cfg.Embedding.Dimensions
			}
			if !cmd.Flags().Changed("embed-provider") {
				cmder.embedProvider = cfg.Embedding.Provider
			}
			if !cmd.Flags().Changed("embed-base-url") {
				cmder.embedBaseURL = cfg.Embedding.Target
			}
			if !cmd.Flags().Changed("embed-model") {
				cmder.embedModel = cfg.Embedding.Model
			}
			if !cmd.Flags().Changed("llm-provider") {
				cmder.llmProvider = cfg.LLM.Provider
			}
			if !cmd.Flags().Changed("llm-model") {
				cmder.llmModel = cfg.LLM.Model
			}
			if !cmd.Flags().Changed("llm-api-key") {
				cmder.llmAPIKey = cfg.LLM.APIKey
			}
			if !cmd.Flags().Changed("llm-base-url") {
				cmder.llmBaseURL = cfg.LLM.Target
			}
			if !cmd.Flags().Changed("vector-store-provider") {
				cmder.vectorStoreProvider = cfg.VectorStore.Provider
			}
			if !cmd.Flags().Changed("vector-store-url") {
				cmder.vectorStoreURL = cfg.VectorStore.Target
			}
			if !cmd.Flags().Changed("vector-store-api-key") {
				cmder.vectorStoreAPIKey = cfg.VectorStore.APIKey
			}
			if !cmd.Flags().Changed("event-stream-provider") {
				cmder.eventStreamProvider = cfg.EventStream.Provider
			}
			if !cmd.Flags().Changed("kafka-brokers") {
				cmder.kafkaBrokers = cfg.EventStream.KafkaBrokers
			}
			if !cmd.Flags().Changed("kafka-topic") {
				cmder.kafkaTopic = cfg.EventStream.KafkaTopic
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.dir = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	defaultDedup := dedup.DefaultConfig()
	defaultPipeline := pipeline.DefaultConfig()

	run.Flags().StringVar(&cmder.mnemoDir, "mnemo-dir", "", "Override the .mnemo state directory")
	run.Flags().UintVar(&cmder.dimensions, "dimensions", 768, "Embedding vector width")
	run.Flags().IntVar(&cmder.maxSessions, "max-sessions", defaultPipeline.MaxSessionsPerRun, "Maximum sessions to process per run")
	run.Flags().IntVar(&cmder.minFreeMB, "min-free-mb", defaultPipeline.MinFreeMB, "Minimum free system memory required to keep processing")
	run.Flags().DurationVar(&cmder.stageTimeout, "stage-timeout", defaultPipeline.StageTimeout, "Per-stage timeout")
	run.Flags().DurationVar(&cmder.lockStaleTTL, "lock-stale-ttl", 5*time.Minute, "How long a held pipeline.lock is trusted before being considered stale")
	run.Flags().BoolVar(&cmder.dedupEnabled, "dedup", defaultDedup.Enabled, "Enable semantic deduplication")
	run.Flags().Float64Var(&cmder.dedupThreshold, "dedup-threshold", defaultDedup.Threshold, "Cosine similarity floor for dedup candidates")
	run.Flags().StringVar(&cmder.embedProvider, "embed-provider", "ollama", "Embedding provider (ollama)")
	run.Flags().StringVar(&cmder.embedBaseURL, "embed-base-url", ollama.DefaultBaseURL, "Embedding provider base URL")
	run.Flags().StringVar(&cmder.embedModel, "embed-model", ollama.DefaultEmbeddingModel, "Embedding model name")
	run.Flags().StringVar(&cmder.llmProvider, "llm-provider", "ollama", "LLM provider for extraction/dedup decisions (openai, anthropic, ollama)")
	run.Flags().StringVar(&cmder.llmModel, "llm-model", "", "LLM model name")
	run.Flags().StringVar(&cmder.llmAPIKey, "llm-api-key", "", "Explicit LLM API key override")
	run.Flags().StringVar(&cmder.llmBaseURL, "llm-base-url", "", "LLM provider base URL override")
	run.Flags().StringVar(&cmder.vectorStoreProvider, "vector-store-provider", "", "External vector index for dedup candidates (chroma, qdrant); empty uses the fact store's built-in index")
	run.Flags().StringVar(&cmder.vectorStoreURL, "vector-store-url", "", "External vector index URL or host:port")
	run.Flags().StringVar(&cmder.vectorStoreAPIKey, "vector-store-api-key", "", "External vector index API key (qdrant only)")
	run.Flags().StringVar(&cmder.eventStreamProvider, "event-stream-provider", "", "Fact-committed event sink (kafka); empty disables publication")
	run.Flags().StringSliceVar(&cmder.kafkaBrokers, "kafka-brokers", nil, "Kafka broker addresses")
	run.Flags().StringVar(&cmder.kafkaTopic, "kafka-topic", "", "Kafka topic override")

	root.AddCommand(run)

	return root
}

func (c *runCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	dm := dotdir.NewManager()

	dbPath, err := dm.FactStorePath(c.mnemoDir)
	if err != nil {
		return fmt.Errorf("resolving mnemo state directory: %w", err)
	}

	store, err := factstore.Open(factstore.Config{
		Path:       dbPath,
		Dimensions: c.dimensions,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("opening fact store: %w", err)
	}
	defer store.Close()

	ledgerPath, err := dm.LedgerPath(c.mnemoDir)
	if err != nil {
		return fmt.Errorf("resolving mnemo state directory: %w", err)
	}
	led, err := ledger.Open(ledgerPath)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer led.Close()

	lockPath, err := dm.LockPath(c.mnemoDir)
	if err != nil {
		return fmt.Errorf("resolving mnemo state directory: %w", err)
	}
	gate := concurrency.NewGate(lockPath, c.lockStaleTTL)

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.embedProvider,
		TargetURL:    c.embedBaseURL,
		Model:        c.embedModel,
		Dimensions:   c.dimensions,
	})
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	credMgr, err := credentials.NewManager("")
	if err != nil {
		c.logger.Warn("credentials manager unavailable, falling back to environment/ollama", zap.Error(err))
	}

	call, err := llmprovider.New(llmprovider.Config{
		Provider: c.llmProvider,
		Model:    c.llmModel,
		APIKey:   c.llmAPIKey,
		BaseURL:  c.llmBaseURL,
		CredMgr:  credMgr,
	})
	if err != nil {
		return fmt.Errorf("resolving LLM provider: %w", err)
	}

	extractor := extract.NewExtractor(call, c.stageTimeout)
	deduper := dedup.NewDeduper(dedup.Config{
		Enabled:       c.dedupEnabled,
		Threshold:     c.dedupThreshold,
		MaxCandidates: dedup.DefaultConfig().MaxCandidates,
	}, embedder, call)

	if c.vectorStoreProvider != "" {
		index, err := vectorindexutils.NewIndex(&vectorindexutils.NewIndexOpts{
			ProviderType: c.vectorStoreProvider,
			TargetURL:    c.vectorStoreURL,
			Dimensions:   uint64(c.dimensions),
			APIKey:       credMgr.Resolve(c.vectorStoreProvider, c.vectorStoreAPIKey),
			Logger:       c.logger,
		})
		if err != nil {
			return fmt.Errorf("building vector index: %w", err)
		}
		deduper = deduper.WithIndex(index, c.logger)
	}

	p := pipeline.New(pipeline.Config{
		MaxSessionsPerRun: c.maxSessions,
		MinFreeMB:         c.minFreeMB,
		StageTimeout:      c.stageTimeout,
		Dedup: dedup.Config{
			Enabled:       c.dedupEnabled,
			Threshold:     c.dedupThreshold,
			MaxCandidates: dedup.DefaultConfig().MaxCandidates,
		},
	}, store, led, gate, extractor, deduper, embedder, c.logger)

	if c.eventStreamProvider != "" {
		publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
			ProviderType: c.eventStreamProvider,
			KafkaBrokers: c.kafkaBrokers,
			KafkaTopic:   c.kafkaTopic,
		})
		if err != nil {
			return fmt.Errorf("building event stream publisher: %w", err)
		}
		p = p.WithPublisher(publisher)
	}

	results, err := p.Backfill(ctx, c.dir)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	c.printResults(results)
	return nil
}

func (c *runCommander) printResults(results []pipeline.Result) {
	done, skipped, failed := 0, 0, 0
	for _, r := range results {
		switch r.Outcome {
		case pipeline.Done:
			done++
		case pipeline.Skipped:
			skipped++
		case pipeline.Failed:
			failed++
		}

		switch r.Outcome {
		case pipeline.Done:
			fmt.Printf("  %s %s  %d facts\n", cliui.SuccessMark, r.SourceID, r.Facts)
		case pipeline.Skipped:
			fmt.Printf("  %s %s  %s\n", cliui.StepStyle.Render("○"), r.SourceID, r.Reason)
		case pipeline.Failed:
			fmt.Printf("  %s %s  %s\n", cliui.FailMark, r.SourceID, r.Reason)
		}
	}

	fmt.Printf("\n%d done, %d skipped, %d failed\n", done, skipped, failed)
}
