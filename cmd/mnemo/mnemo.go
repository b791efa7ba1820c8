// Package mnemocmder
package mnemocmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/memoryforge/mnemo/cmd/mnemo/config"
	instinctcmder "github.com/memoryforge/mnemo/cmd/mnemo/instinct"
	memorycmder "github.com/memoryforge/mnemo/cmd/mnemo/memory"
	pipelinecmder "github.com/memoryforge/mnemo/cmd/mnemo/pipeline"
	servecmder "github.com/memoryforge/mnemo/cmd/mnemo/serve"
	versioncmder "github.com/memoryforge/mnemo/cmd/version"
)

const mnemoLongDesc string = `Mnemo is a persistent memory consolidation engine for conversational AI agents.

Run the pipeline over recorded sessions using:
  mnemo pipeline run <dir>   Extract, dedup, and commit facts from a session directory

Query and mutate the memory store using:
  mnemo memory summary       Print the memory digest
  mnemo memory search        Search stored facts
  mnemo memory store         Store or update a fact

Manage learned instincts using:
  mnemo instinct list        List active instincts
  mnemo instinct show        Show a single instinct
  mnemo instinct extract     Mine instincts from transcripts and case history
  mnemo instinct delete      Close an instinct

Manage persistent configuration using:
  mnemo config get           Get a configuration value
  mnemo config set           Set a configuration value
  mnemo config list          List all configuration values
  mnemo config preset        Apply an LLM/embedding provider preset

Serve the query/mutation API to other hosts and agents using:
  mnemo serve                Run the HTTP and MCP query/mutation API`

const mnemoShortDesc string = "Mnemo - Persistent Memory for Agents"

func NewMnemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mnemo",
		Short: mnemoShortDesc,
		Long:  mnemoLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .mnemo/ config directory")

	// Add subcommands
	cmd.AddCommand(pipelinecmder.NewPipelineCmd())
	cmd.AddCommand(memorycmder.NewMemoryCmd())
	cmd.AddCommand(instinctcmder.NewInstinctCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
