package config

const (
	defaultLLMProvider = "ollama"
	defaultLLMTarget   = "http://localhost:11434"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultDedupEnabled             = true
	defaultDedupSimilarityThreshold = 0.85
	defaultDedupMaxCandidates       = 5

	defaultSearchVectorThreshold = 0.3
	defaultSearchVectorWeight    = 0.7
	defaultSearchBM25Weight      = 0.3
	defaultSearchBM25Bonus       = 0.15

	defaultGuardsMaxSessionsPerRun   = 50
	defaultGuardsMinFreeMB           = 300
	defaultGuardsStageTimeoutSeconds = 120

	defaultLockStaleTTLSeconds = 300
)

// defaultCategories is the enumerated set of valid top-level key categories,
// per spec.md §3's normalized key grammar.
var defaultCategories = []string{
	"user", "project", "task", "system", "config", "preference", "location",
	"tool", "agent", "workflow", "team", "environment", "model", "auth",
	"channel", "gateway", "plugin", "binding", "command", "meta", "error",
	"correction", "event", "entity", "inferred",
}

// defaultTypeMappings maps the `type` verdict filter values to the key
// categories they include, per spec.md §4.G / §6 and internal/search's
// Config.TypeMappings.
var defaultTypeMappings = map[string][]string{
	"fact":     {"user", "project", "task", "system", "location", "tool", "environment", "model", "auth", "channel", "gateway", "plugin", "binding", "command", "meta"},
	"pref":     {"preference"},
	"entity":   {"entity"},
	"event":    {"event", "correction"},
	"agent":    {"agent", "workflow", "team"},
	"inferred": {"inferred"},
	"error":    {"error"},
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Dedup: DedupConfig{
			Enabled:             defaultDedupEnabled,
			SimilarityThreshold: defaultDedupSimilarityThreshold,
			MaxCandidates:       defaultDedupMaxCandidates,
		},
		Search: SearchConfig{
			VectorThreshold: defaultSearchVectorThreshold,
			VectorWeight:    defaultSearchVectorWeight,
			BM25Weight:      defaultSearchBM25Weight,
			BM25Bonus:       defaultSearchBM25Bonus,
		},
		Guards: GuardsConfig{
			MaxSessionsPerRun:   defaultGuardsMaxSessionsPerRun,
			MinFreeMB:           defaultGuardsMinFreeMB,
			StageTimeoutSeconds: defaultGuardsStageTimeoutSeconds,
		},
		Lock: LockConfig{
			StaleTTLSeconds: defaultLockStaleTTLSeconds,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Target:   defaultLLMTarget,
		},
		TypeMappings: defaultTypeMappings,
		Categories:   defaultCategories,
	}
}
