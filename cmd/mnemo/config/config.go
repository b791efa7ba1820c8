// Package configcmder provides the config command for managing persistent
// mnemo configuration stored in the .mnemo/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent mnemo configuration.

Configuration is stored as config.toml in the .mnemo/ directory and provides
default values for pipeline tunables (dedup thresholds, search weights,
guard limits) and provider settings. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path,
  dedup.enabled, dedup.similarity_threshold, dedup.max_candidates,
  search.vector_threshold, search.vector_weight, search.bm25_weight, search.bm25_bonus,
  guards.max_sessions_per_run, guards.min_free_mb, guards.stage_timeout_seconds,
  lock.stale_ttl_seconds,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  llm.provider, llm.target, llm.model, llm.api_key,
  vector_store.provider, vector_store.target, vector_store.api_key,
  event_stream.provider, event_stream.kafka_brokers, event_stream.kafka_topic

Use subcommands to get, set, list, or apply a provider preset:
  mnemo config set <key> <value>    Set a configuration value
  mnemo config get <key>            Get a configuration value
  mnemo config list                 List all configuration values
  mnemo config preset <name>        Apply an LLM/embedding provider preset

Examples:
  mnemo config set dedup.similarity_threshold 0.9
  mnemo config set guards.min_free_mb 500
  mnemo config get embedding.model
  mnemo config preset anthropic
  mnemo config list`

const configShortDesc string = "Manage persistent mnemo configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newPresetCmd())

	return cmd
}
