package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/memoryforge/mnemo/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the MNEMO_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (MNEMO_DEDUP_ENABLED, MNEMO_GUARDS_MIN_FREE_MB, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: MNEMO_DEDUP_ENABLED, MNEMO_SEARCH_VECTOR_WEIGHT, etc.
	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)

	// Dedup
	v.SetDefault("dedup.enabled", d.Dedup.Enabled)
	v.SetDefault("dedup.similarity_threshold", d.Dedup.SimilarityThreshold)
	v.SetDefault("dedup.max_candidates", d.Dedup.MaxCandidates)

	// Search
	v.SetDefault("search.vector_threshold", d.Search.VectorThreshold)
	v.SetDefault("search.vector_weight", d.Search.VectorWeight)
	v.SetDefault("search.bm25_weight", d.Search.BM25Weight)
	v.SetDefault("search.bm25_bonus", d.Search.BM25Bonus)

	// Guards
	v.SetDefault("guards.max_sessions_per_run", d.Guards.MaxSessionsPerRun)
	v.SetDefault("guards.min_free_mb", d.Guards.MinFreeMB)
	v.SetDefault("guards.stage_timeout_seconds", d.Guards.StageTimeoutSeconds)

	// Lock
	v.SetDefault("lock.stale_ttl_seconds", d.Lock.StaleTTLSeconds)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// LLM
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.target", d.LLM.Target)
	v.SetDefault("llm.model", d.LLM.Model)

	// Vector store (disabled by default)
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)

	// Event stream (disabled by default)
	v.SetDefault("event_stream.provider", d.EventStream.Provider)
	v.SetDefault("event_stream.kafka_topic", d.EventStream.KafkaTopic)
}
