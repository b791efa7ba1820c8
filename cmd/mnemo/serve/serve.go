// Package servecmder provides the `mnemo serve` command, running the
// Query/Mutation API's HTTP and MCP transports (spec.md §4.L) against a
// shared engine instance.
//
// Grounded on the teacher's cmd/tapes/serve/serve.go (signal-driven
// shutdown, errChan fan-in from the running server goroutine), generalized
// from two separately-listening servers (proxy, api) to one fiber app
// serving both the REST routes and the MCP endpoint mounted via
// github.com/gofiber/adaptor/v2, since internal/mcpserver.Handler() is a
// plain net/http.Handler rather than its own listener.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/api"
	"github.com/memoryforge/mnemo/internal/engine"
	"github.com/memoryforge/mnemo/internal/factstore"
	"github.com/memoryforge/mnemo/internal/mcpserver"
	"github.com/memoryforge/mnemo/internal/search"
	"github.com/memoryforge/mnemo/pkg/dotdir"
	"github.com/memoryforge/mnemo/pkg/embeddings/ollama"
	embeddingutils "github.com/memoryforge/mnemo/pkg/embeddings/utils"
	"github.com/memoryforge/mnemo/pkg/logger"
)

type serveCommander struct {
	mnemoDir      string
	dimensions    uint
	embedProvider string
	embedBaseURL  string
	embedModel    string
	listen        string
	mcpPath       string
	debug         bool
	logger        *zap.Logger
}

const serveLongDesc string = `Run the Query/Mutation API over HTTP and MCP.

A single fiber server exposes the REST routes under /v1 (see internal/api)
and the MCP tool surface under the configured path (see internal/mcpserver),
both backed by the same engine instance used by 'mnemo memory' and
'mnemo instinct'.`

const serveShortDesc string = "Run the HTTP and MCP query/mutation API"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.mnemoDir, "mnemo-dir", "", "Override the .mnemo state directory")
	cmd.Flags().UintVar(&cmder.dimensions, "dimensions", 768, "Embedding vector width")
	cmd.Flags().StringVar(&cmder.embedProvider, "embed-provider", "ollama", "Embedding provider (ollama)")
	cmd.Flags().StringVar(&cmder.embedBaseURL, "embed-base-url", ollama.DefaultBaseURL, "Embedding provider base URL")
	cmd.Flags().StringVar(&cmder.embedModel, "embed-model", ollama.DefaultEmbeddingModel, "Embedding model name")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", ":8091", "Address for the API/MCP server to listen on")
	cmd.Flags().StringVar(&cmder.mcpPath, "mcp-path", "/mcp", "Path the MCP endpoint is mounted under")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	dbPath, err := dotdir.NewManager().FactStorePath(c.mnemoDir)
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

	eng := engine.New(store, embedder, search.DefaultConfig(), time.Now)

	apiServer := api.NewServer(api.Config{ListenAddr: c.listen}, eng, c.logger)

	mcpSrv, err := mcpserver.NewServer(mcpserver.Config{Engine: eng, Logger: c.logger})
	if err != nil {
		return fmt.Errorf("building MCP server: %w", err)
	}
	apiServer.App().All(c.mcpPath, adaptor.HTTPHandler(mcpSrv.Handler()))

	c.logger.Info("starting serve",
		zap.String("listen", c.listen),
		zap.String("mcp_path", c.mcpPath),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("api server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return apiServer.Shutdown()
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}
