package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memoryforge/mnemo/pkg/cliui"
	"github.com/memoryforge/mnemo/pkg/config"
)

const presetLongDesc string = `Apply an LLM/embedding provider preset.

Overwrites the llm.* and embedding.* sections of config.toml with the
named preset's defaults, leaving every other section (dedup, search,
guards, lock, vector_store, event_stream) untouched.

Examples:
  mnemo config preset openai
  mnemo config preset anthropic
  mnemo config preset ollama`

const presetShortDesc string = "Apply an LLM/embedding provider preset"

func newPresetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset <name>",
		Short: presetShortDesc,
		Long:  presetLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runPreset(args[0], configDir)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runPreset(name, configDir string) error {
	preset, err := config.PresetConfig(name)
	if err != nil {
		return fmt.Errorf("%w\n\nValid presets: %s", err, strings.Join(config.ValidPresetNames(), ", "))
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg.LLM = preset.LLM
	cfg.Embedding = preset.Embedding

	if err := cfger.SaveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\n  %s Applied preset %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(name),
	)
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("llm.provider"), cliui.ValueStyle.Render(cfg.LLM.Provider))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("llm.target"), cliui.ValueStyle.Render(cfg.LLM.Target))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("embedding.provider"), cliui.ValueStyle.Render(cfg.Embedding.Provider))
	fmt.Printf("  %s  %s\n\n", cliui.KeyStyle.Render("embedding.model"), cliui.ValueStyle.Render(cfg.Embedding.Model))

	return nil
}
