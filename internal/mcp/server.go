package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/typegate/internal/engine"
)

// Config holds MCP server configuration.
type Config struct {
	Version string
}

// Server wraps the MCP SDK server with typegate admission tools.
// Only secure decoding is exposed.
type Server struct {
	mcpServer *mcpsdk.Server
	eng       *engine.Engine
}

// New creates an MCP server backed by eng.
func New(eng *engine.Engine, cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{eng: eng}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "typegate",
			Version: version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all typegate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "typegate_check",
		Description: "Check whether a type identifier would be admitted by the active allow-list policy.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "typegate_decode",
		Description: "Decode a payload in secure mode. Native payloads are base64-encoded. Rejected types return an error result with the reason.",
	}, s.handleDecode)
}
