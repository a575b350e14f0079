// Package mcp exposes the profiling engine to agents over the Model Context Protocol.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/mcp/tools"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "lemur-engine"

// Server wraps the mcp-go MCPServer with the engine's tool set registered.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server and registers the health and engine tools.
func NewServer(version string, deps *tools.ToolDeps, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
	)

	tools.RegisterHealthTool(mcpServer, version)
	tools.RegisterEngineTools(mcpServer, deps)

	logger.Named("mcp").Info("MCP server ready", zap.String("version", version))

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// MCP returns the underlying MCPServer.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates a stateless HTTP transport wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}
