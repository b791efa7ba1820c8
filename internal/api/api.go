// Package api exposes the Query/Mutation API (spec.md §4.L) over HTTP.
//
// Grounded on the teacher's api/api.go (fiber.New with a disabled startup
// banner, route registration in NewServer, Run/Shutdown pair) and
// api/search_handler.go's query-parameter parsing and ErrorResponse JSON
// shape, generalized from DAG inspection endpoints to the engine's
// summary/search/store/instinct operations.
package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/engine"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8091").
	ListenAddr string
}

// ErrorResponse is the JSON body returned on non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the HTTP transport for the Query/Mutation API.
type Server struct {
	config Config
	engine *engine.Engine
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The engine is injected so it can be
// shared with other transports (internal/mcpserver, cmd/mnemo).
func NewServer(config Config, eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		engine: eng,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/summary", s.handleSummary)
	app.Get("/v1/search", s.handleSearch)
	app.Post("/v1/store", s.handleStore)
	app.Get("/v1/instincts", s.handleListInstincts)
	app.Get("/v1/instincts/:key", s.handleShowInstinct)
	app.Delete("/v1/instincts/:key", s.handleDeleteInstinct)
	app.Post("/v1/instincts/extract", s.handleExtractInstincts)

	return s
}

// App returns the underlying fiber.App so a composing entrypoint (e.g.
// cmd/mnemo serve) can mount additional handlers — such as
// internal/mcpserver's MCP endpoint via github.com/gofiber/adaptor/v2 —
// onto the same listener before calling Run.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", zap.String("listen", s.config.ListenAddr))
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
