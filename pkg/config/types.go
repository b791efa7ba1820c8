package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent mnemo configuration stored as config.toml
// in the .mnemo/ directory. The TOML layout uses sections for logical grouping,
// mirroring the component boundaries in spec.md §4.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Dedup       DedupConfig       `toml:"dedup"`
	Search      SearchConfig      `toml:"search"`
	Guards      GuardsConfig      `toml:"guards"`
	Lock        LockConfig        `toml:"lock"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	LLM         LLMConfig         `toml:"llm"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	EventStream EventStreamConfig `toml:"event_stream"`

	// TypeMappings maps a `type` verdict filter value (spec.md §4.G) to the
	// set of top-level key categories it includes. Structural, not exposed
	// through GetConfigValue/SetConfigValue — edit config.toml directly.
	TypeMappings map[string][]string `toml:"type_mappings,omitempty"`

	// Categories is the enumerated set of valid top-level key categories
	// (spec.md §3's normalized key grammar). Structural, same as TypeMappings.
	Categories []string `toml:"categories,omitempty"`
}

// StorageConfig holds the fact store's on-disk location.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// DedupConfig holds the Semantic Deduper's tunables (spec.md §4.E).
type DedupConfig struct {
	Enabled            bool    `toml:"enabled,omitempty"`
	SimilarityThreshold float64 `toml:"similarity_threshold,omitempty"`
	MaxCandidates      int     `toml:"max_candidates,omitempty"`
}

// SearchConfig holds Hybrid Search's tunables (spec.md §4.G).
type SearchConfig struct {
	VectorThreshold float64 `toml:"vector_threshold,omitempty"`
	VectorWeight    float64 `toml:"vector_weight,omitempty"`
	BM25Weight      float64 `toml:"bm25_weight,omitempty"`
	BM25Bonus       float64 `toml:"bm25_bonus,omitempty"`
}

// GuardsConfig holds the Pipeline Orchestrator's caps and guards (spec.md §4.H).
type GuardsConfig struct {
	MaxSessionsPerRun  int `toml:"max_sessions_per_run,omitempty"`
	MinFreeMB          int `toml:"min_free_mb,omitempty"`
	StageTimeoutSeconds int `toml:"stage_timeout_seconds,omitempty"`
}

// LockConfig holds the Concurrency Gate's tunables (spec.md §4.K).
type LockConfig struct {
	StaleTTLSeconds int `toml:"stale_ttl_seconds,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// LLMConfig holds the fact-extractor/deduper LLM provider settings.
type LLMConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// VectorStoreConfig holds the optional external vector index settings for
// the Semantic Deduper's candidate lookup (spec.md §4.E, SPEC_FULL.md §11).
// An empty Provider disables it; the fact store's built-in brute-cosine scan
// is used instead.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// EventStreamConfig holds the optional fact-committed event publication sink
// (SPEC_FULL.md §11). An empty Provider disables publication entirely.
type EventStreamConfig struct {
	Provider     string   `toml:"provider,omitempty"`
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported scalar configuration
// keys. Keys use dotted notation matching the TOML section structure.
// Structural fields (type_mappings, categories) are not included here; they
// are edited directly in config.toml.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"dedup.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Dedup.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for dedup.enabled: %w", err)
			}
			c.Dedup.Enabled = b
			return nil
		},
	},
	"dedup.similarity_threshold": {
		get: func(c *Config) string { return formatFloat(c.Dedup.SimilarityThreshold) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for dedup.similarity_threshold: %w", err)
			}
			c.Dedup.SimilarityThreshold = f
			return nil
		},
	},
	"dedup.max_candidates": {
		get: func(c *Config) string { return strconv.Itoa(c.Dedup.MaxCandidates) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for dedup.max_candidates: %w", err)
			}
			c.Dedup.MaxCandidates = n
			return nil
		},
	},
	"search.vector_threshold": {
		get: func(c *Config) string { return formatFloat(c.Search.VectorThreshold) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.vector_threshold: %w", err)
			}
			c.Search.VectorThreshold = f
			return nil
		},
	},
	"search.vector_weight": {
		get: func(c *Config) string { return formatFloat(c.Search.VectorWeight) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.vector_weight: %w", err)
			}
			c.Search.VectorWeight = f
			return nil
		},
	},
	"search.bm25_weight": {
		get: func(c *Config) string { return formatFloat(c.Search.BM25Weight) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.bm25_weight: %w", err)
			}
			c.Search.BM25Weight = f
			return nil
		},
	},
	"search.bm25_bonus": {
		get: func(c *Config) string { return formatFloat(c.Search.BM25Bonus) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for search.bm25_bonus: %w", err)
			}
			c.Search.BM25Bonus = f
			return nil
		},
	},
	"guards.max_sessions_per_run": {
		get: func(c *Config) string { return strconv.Itoa(c.Guards.MaxSessionsPerRun) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for guards.max_sessions_per_run: %w", err)
			}
			c.Guards.MaxSessionsPerRun = n
			return nil
		},
	},
	"guards.min_free_mb": {
		get: func(c *Config) string { return strconv.Itoa(c.Guards.MinFreeMB) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for guards.min_free_mb: %w", err)
			}
			c.Guards.MinFreeMB = n
			return nil
		},
	},
	"guards.stage_timeout_seconds": {
		get: func(c *Config) string { return strconv.Itoa(c.Guards.StageTimeoutSeconds) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for guards.stage_timeout_seconds: %w", err)
			}
			c.Guards.StageTimeoutSeconds = n
			return nil
		},
	},
	"lock.stale_ttl_seconds": {
		get: func(c *Config) string { return strconv.Itoa(c.Lock.StaleTTLSeconds) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for lock.stale_ttl_seconds: %w", err)
			}
			c.Lock.StaleTTLSeconds = n
			return nil
		},
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.target": {
		get: func(c *Config) string { return c.LLM.Target },
		set: func(c *Config, v string) error { c.LLM.Target = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"llm.api_key": {
		get: func(c *Config) string { return c.LLM.APIKey },
		set: func(c *Config, v string) error { c.LLM.APIKey = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.api_key": {
		get: func(c *Config) string { return c.VectorStore.APIKey },
		set: func(c *Config, v string) error { c.VectorStore.APIKey = v; return nil },
	},
	"event_stream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error { c.EventStream.Provider = v; return nil },
	},
	"event_stream.kafka_brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.KafkaBrokers, ",") },
		set: func(c *Config, v string) error {
			if v == "" {
				c.EventStream.KafkaBrokers = nil
				return nil
			}
			c.EventStream.KafkaBrokers = strings.Split(v, ",")
			return nil
		},
	},
	"event_stream.kafka_topic": {
		get: func(c *Config) string { return c.EventStream.KafkaTopic },
		set: func(c *Config, v string) error { c.EventStream.KafkaTopic = v; return nil },
	},
}

// formatFloat renders a float64 without a trailing ".0" for whole numbers,
// matching the compact style spec.md's examples use for thresholds/weights.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
