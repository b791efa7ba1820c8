// Package mcpserver exposes the Query/Mutation API (spec.md §4.L) as MCP
// tools.
//
// Grounded on the teacher's api/mcp/mcp.go (NewServer wiring
// mcp.NewServer + mcp.AddTool + a StreamableHTTPHandler, with a Noop
// escape hatch for when MCP is disabled) and api/mcp/memory.go's
// typed-input/output tool handler shape (return an IsError CallToolResult
// with a TextContent message on failure, a JSON-serialized TextContent on
// success), generalized from single-tool (memory_recall) to the full
// search/store/list_instincts/show_instinct/delete_instinct/
// extract_instincts op set.
package mcpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/memoryforge/mnemo/internal/engine"
)

const serverName = "mnemo"

// Version is the MCP implementation version advertised to clients.
var Version = "dev"

// Config configures the MCP server.
type Config struct {
	Engine *engine.Engine
	Logger *zap.Logger

	// Noop returns an empty MCP server with no tools configured, matching
	// the teacher's escape hatch for disabling MCP without branching at
	// every call site.
	Noop bool
}

// Server is the MCP transport for the Query/Mutation API.
type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer builds an MCP server exposing the engine's operations as
// tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{config: c}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: Version},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	mcp.AddTool(mcpServer, &mcp.Tool{Name: "memory_summary", Description: summaryDescription}, s.handleSummary)
	mcp.AddTool(mcpServer, &mcp.Tool{Name: "memory_search", Description: searchDescription}, s.handleSearch)
	mcp.AddTool(mcpServer, &mcp.Tool{Name: "memory_store", Description: storeDescription}, s.handleStore)
	mcp.AddTool(mcpServer, &mcp.Tool{Name: "list_instincts", Description: listInstinctsDescription}, s.handleListInstincts)
	mcp.AddTool(mcpServer, &mcp.Tool{Name: "show_instinct", Description: showInstinctDescription}, s.handleShowInstinct)
	mcp.AddTool(mcpServer, &mcp.Tool{Name: "delete_instinct", Description: deleteInstinctDescription}, s.handleDeleteInstinct)
	mcp.AddTool(mcpServer, &mcp.Tool{Name: "extract_instincts", Description: extractInstinctsDescription}, s.handleExtractInstincts)

	s.mcpServer = mcpServer
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return mcpServer },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func jsonResult(output any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(output)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(b)}}}, nil
}
