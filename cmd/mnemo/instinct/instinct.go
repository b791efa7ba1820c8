// Package instinctcmder provides the `mnemo instinct` command group for
// managing agent.instinct.* records mined by the Instinct Learner
// (spec.md §4.J).
package instinctcmder

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/engine"
	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/search"
	"github.com/memoryforge/mnemo/pkg/dotdir"
	"github.com/memoryforge/mnemo/pkg/embeddings/ollama"
	embeddingutils "github.com/memoryforge/mnemo/pkg/embeddings/utils"
	"github.com/memoryforge/mnemo/pkg/logger"
)

var (
	triggerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	actionStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	confidenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	domainStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type sharedFlags struct {
	mnemoDir      string
	dimensions    uint
	embedProvider string
	embedBaseURL  string
	embedModel    string
	debug         bool
}

func addSharedFlags(cmd *cobra.Command, f *sharedFlags) {
	cmd.Flags().StringVar(&f.mnemoDir, "mnemo-dir", "", "Override the .mnemo state directory")
	cmd.Flags().UintVar(&f.dimensions, "dimensions", 768, "Embedding vector width")
	cmd.Flags().StringVar(&f.embedProvider, "embed-provider", "ollama", "Embedding provider (ollama)")
	cmd.Flags().StringVar(&f.embedBaseURL, "embed-base-url", ollama.DefaultBaseURL, "Embedding provider base URL")
	cmd.Flags().StringVar(&f.embedModel, "embed-model", ollama.DefaultEmbeddingModel, "Embedding model name")
}

func (f *sharedFlags) buildEngine(logger *zap.Logger) (*engine.Engine, *factstore.Store, error) {
	dbPath, err := dotdir.NewManager().FactStorePath(f.mnemoDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving mnemo state directory: %w", err)
	}

	store, err := factstore.Open(factstore.Config{
		Path:       dbPath,
		Dimensions: f.dimensions,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening fact store: %w", err)
	}

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: f.embedProvider,
		TargetURL:    f.embedBaseURL,
		Model:        f.embedModel,
		Dimensions:   f.dimensions,
	})
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}

	eng := engine.New(store, embedder, search.DefaultConfig(), time.Now)
	return eng, store, nil
}

func NewInstinctCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instinct",
		Short: "Manage learned agent instincts",
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newExtractCmd())

	return cmd
}

func printInstinct(key string, i engine.InstinctItem) {
	fmt.Printf("  %s\n", triggerStyle.Render(key))
	fmt.Printf("    trigger:    %s\n", actionStyle.Render(i.Instinct.Trigger))
	fmt.Printf("    action:     %s\n", actionStyle.Render(i.Instinct.Action))
	fmt.Printf("    confidence: %s\n", confidenceStyle.Render(fmt.Sprintf("%.2f", i.Instinct.Confidence)))
	fmt.Printf("    domain:     %s  %s\n\n", domainStyle.Render(i.Instinct.Domain), domainStyle.Render(fmt.Sprintf("(%d cases)", i.Instinct.EvidenceCount)))
}

func newListCmd() *cobra.Command {
	f := &sharedFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active instincts, most confident first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			f.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			log := logger.NewLogger(f.debug)
			defer func() { _ = log.Sync() }()

			eng, store, err := f.buildEngine(log)
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := eng.ListInstincts(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing instincts: %w", err)
			}

			if len(items) == 0 {
				fmt.Println("No active instincts.")
				return nil
			}

			for _, item := range items {
				printInstinct(item.Key, item)
			}
			return nil
		},
	}

	addSharedFlags(cmd, f)
	return cmd
}

func newShowCmd() *cobra.Command {
	f := &sharedFlags{}

	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Show a single instinct by its full key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			f.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			log := logger.NewLogger(f.debug)
			defer func() { _ = log.Sync() }()

			eng, store, err := f.buildEngine(log)
			if err != nil {
				return err
			}
			defer store.Close()

			item, err := eng.ShowInstinct(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("showing instinct: %w", err)
			}

			printInstinct(item.Key, item)
			return nil
		},
	}

	addSharedFlags(cmd, f)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	f := &sharedFlags{}

	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Close an instinct record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			f.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			log := logger.NewLogger(f.debug)
			defer func() { _ = log.Sync() }()

			eng, store, err := f.buildEngine(log)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := eng.DeleteInstinct(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting instinct: %w", err)
			}

			fmt.Printf("closed %s\n", args[0])
			return nil
		},
	}

	addSharedFlags(cmd, f)
	return cmd
}

type extractCommander struct {
	sharedFlags
	minConfidence float64
	store         bool
	transcripts   []string

	llmProvider string
	llmModel    string
	llmAPIKey   string
	llmBaseURL  string
}

func newExtractCmd() *cobra.Command {
	c := &extractCommander{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Mine cases and patterns from transcripts and the store's history into instincts",
		Long: "Mine agent.case.*/agent.pattern.* records from --transcript files and the store's\n" +
			"prior history, then distill them into agent.instinct.* records. With --store, the\n" +
			"newly-mined cases and patterns are upserted as facts before distillation runs, so\n" +
			"later extract runs see them as prior evidence; without it, extraction and\n" +
			"distillation run as a dry run and nothing is written.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			c.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return c.run(cmd.Context())
		},
	}

	addSharedFlags(cmd, &c.sharedFlags)
	cmd.Flags().Float64Var(&c.minConfidence, "min-confidence", 0.5, "Minimum confidence to keep")
	cmd.Flags().BoolVar(&c.store, "store", false, "Persist generated instincts instead of a dry run")
	cmd.Flags().StringSliceVar(&c.transcripts, "transcript", nil, "Path to a normalized transcript JSONL file (repeatable)")

	return cmd
}

func (c *extractCommander) run(ctx context.Context) error {
	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	eng, store, err := c.buildEngine(log)
	if err != nil {
		return err
	}
	defer store.Close()

	instincts, err := eng.ExtractInstincts(ctx, engine.ExtractInstinctsRequest{
		MinConfidence: c.minConfidence,
		Store:         c.store,
		Transcripts:   c.transcripts,
	})
	if err != nil {
		return fmt.Errorf("extracting instincts: %w", err)
	}

	if len(instincts) == 0 {
		fmt.Println("No instincts met the confidence threshold.")
		return nil
	}

	mode := "dry run"
	if c.store {
		mode = "cases, patterns, and instincts stored"
	}
	fmt.Printf("%s (%s):\n\n", fmt.Sprintf("%d instincts", len(instincts)), mode)

	for _, ni := range instincts {
		printInstinct(ni.Key, engine.InstinctItem{Key: ni.Key, Instinct: ni.Instinct})
	}

	return nil
}
