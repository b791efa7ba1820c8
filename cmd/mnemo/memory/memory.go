// Package memorycmder provides the `mnemo memory` command group for
// querying and mutating the persistent memory store directly, without
// going through the HTTP or MCP transports.
package memorycmder

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/aggregate"
	"github.com/memoryforge/mnemo/internal/engine"
	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/search"
	"github.com/memoryforge/mnemo/pkg/dotdir"
	"github.com/memoryforge/mnemo/pkg/embeddings/ollama"
	embeddingutils "github.com/memoryforge/mnemo/pkg/embeddings/utils"
	"github.com/memoryforge/mnemo/pkg/logger"
)

var (
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
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

// buildEngine wires a factstore + embedder into an engine.Engine for a
// single command invocation. Each memory subcommand builds its own,
// mirroring the teacher's per-command storage-driver construction
// (cmd/tapes/serve/api, cmd/tapes/serve/proxy) rather than sharing a
// process-lifetime instance.
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

func NewMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Query and mutate the persistent memory store",
	}

	cmd.AddCommand(newSummaryCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStoreCmd())
	cmd.AddCommand(newAggregateCmd())

	return cmd
}

func newSummaryCmd() *cobra.Command {
	f := &sharedFlags{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the memory digest summary line",
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

			summary, err := eng.Summary(cmd.Context())
			if err != nil {
				return fmt.Errorf("building summary: %w", err)
			}

			fmt.Println(summary)
			return nil
		},
	}

	addSharedFlags(cmd, f)
	return cmd
}

type searchCommander struct {
	sharedFlags
	prefix         string
	keys           []string
	text           string
	limit          int
	sourceVerified bool
	subject        string
	maxAgeDays     int
	factType       string
}

func newSearchCmd() *cobra.Command {
	c := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search stored facts by prefix, keys, or free text",
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
	cmd.Flags().StringVar(&c.prefix, "prefix", "", "Restrict results to keys with this dotted prefix")
	cmd.Flags().StringSliceVar(&c.keys, "keys", nil, "Restrict results to this exact set of keys")
	cmd.Flags().StringVar(&c.text, "text", "", "Free text query, fused across vector and keyword search")
	cmd.Flags().IntVar(&c.limit, "limit", 10, "Maximum results to return")
	cmd.Flags().BoolVar(&c.sourceVerified, "source-verified", false, "Exclude inferred.* facts")
	cmd.Flags().StringVar(&c.subject, "subject", "", "Substring filter on the fact's key")
	cmd.Flags().IntVar(&c.maxAgeDays, "max-age-days", 0, "Exclude facts older than this many days")
	cmd.Flags().StringVar(&c.factType, "type", "", "Restrict results to a configured type_mappings category")

	return cmd
}

func (c *searchCommander) run(ctx context.Context) error {
	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	eng, store, err := c.buildEngine(log)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := eng.Search(ctx, engine.SearchRequest{
		Prefix:         c.prefix,
		Keys:           c.keys,
		Text:           c.text,
		Limit:          c.limit,
		SourceVerified: c.sourceVerified,
		Subject:        c.subject,
		MaxAgeDays:     c.maxAgeDays,
		Type:           c.factType,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	for _, r := range results {
		fmt.Printf("  %s  %s  %s\n",
			keyStyle.Render(r.Key),
			valueStyle.Render(r.Value),
			scoreStyle.Render(fmt.Sprintf("score: %.4f", r.Score)),
		)
	}

	return nil
}

func newStoreCmd() *cobra.Command {
	f := &sharedFlags{}

	cmd := &cobra.Command{
		Use:   "store <key> <value>",
		Short: "Store or update a fact under a dotted key",
		Args:  cobra.ExactArgs(2),
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

			res, err := eng.Store(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("store failed: %w", err)
			}

			fmt.Printf("  %s %s  %s\n", keyStyle.Render(res.Key), dimStyle.Render(string(res.Result)), dimStyle.Render("row "+strconv.FormatInt(res.RowID, 10)))
			return nil
		},
	}

	addSharedFlags(cmd, f)
	return cmd
}

// newAggregateCmd implements the Aggregator's on-disk half (spec.md §4.I,
// §6's "digest.json, daily log directory, weekly/rolling topics
// directory — all regenerable"). Every file it writes is derived purely
// from the active fact set, matching internal/aggregate's doc comment
// that nothing written here is read back by the pipeline.
func newAggregateCmd() *cobra.Command {
	f := &sharedFlags{}
	var outDir string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Regenerate digest.json, the daily log, the weekly snapshot, and rolling topic files",
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

			baseDir := outDir
			if baseDir == "" {
				baseDir, err = dotdir.NewManager().AggregatePath(f.mnemoDir)
				if err != nil {
					return fmt.Errorf("resolving mnemo state directory: %w", err)
				}
			}

			result, err := eng.Aggregate(cmd.Context())
			if err != nil {
				return fmt.Errorf("aggregating: %w", err)
			}

			if err := (&aggregate.Writer{Dir: baseDir}).WriteOne("digest.json", string(result.DigestJSON)); err != nil {
				return fmt.Errorf("writing digest: %w", err)
			}

			dailyDir := filepath.Join(baseDir, "daily")
			dailyName := result.DailyDate.Format("2006-01-02") + ".md"
			if err := (&aggregate.Writer{Dir: dailyDir}).WriteOne(dailyName, result.DailyLog); err != nil {
				return fmt.Errorf("writing daily log: %w", err)
			}

			weekLabel := fmt.Sprintf("%d-W%02d", result.WeekYear, result.WeekNumber)
			weeklyDir := filepath.Join(baseDir, "weekly", weekLabel)
			if err := (&aggregate.Writer{Dir: weeklyDir}).WriteAll(result.WeeklyFiles); err != nil {
				return fmt.Errorf("writing weekly snapshot: %w", err)
			}

			rollingDir := filepath.Join(baseDir, "rolling")
			rollingFiles := make(map[string]string, len(result.RollingFiles)+1)
			for name, content := range result.RollingFiles {
				rollingFiles[name] = content
			}
			rollingFiles["index.md"] = result.RollingIndex
			if err := (&aggregate.Writer{Dir: rollingDir}).WriteAll(rollingFiles); err != nil {
				return fmt.Errorf("writing rolling topic files: %w", err)
			}

			fmt.Printf("wrote digest, %s, %s, and %d rolling topic files under %s\n",
				filepath.Join("daily", dailyName), filepath.Join("weekly", weekLabel), len(rollingFiles), baseDir)
			return nil
		},
	}

	addSharedFlags(cmd, f)
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Directory to write aggregate output to (default: <mnemo-dir>/aggregate)")
	return cmd
}
