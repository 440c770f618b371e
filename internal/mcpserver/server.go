package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/lazypower/recall/internal/retrieval"
	"github.com/lazypower/recall/internal/store"
)

// Name is the server name announced during the MCP handshake.
const Name = "recall"

// Server exposes the retrieval pipeline and graph memory as MCP tools.
type Server struct {
	db       *store.DB
	pipeline *retrieval.Pipeline
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// New builds the tool server. Either dependency may be nil; the tools that
// need it then answer with a tool error.
func New(db *store.DB, pipeline *retrieval.Pipeline, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		db:       db,
		pipeline: pipeline,
		logger:   logger.With("component", "mcp"),
		mcp: server.NewMCPServer(Name, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions("Retrieval over a local document index, knowledge graph and optional web search, fused into one ranked list."),
		),
	}
	s.registerRetrievalTools()
	s.registerGraphTools()
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio speaks MCP over in and out until ctx is done or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("serving MCP over stdio")
	return stdio.Listen(ctx, in, out)
}

// jsonResult renders v as the text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(buf)), nil
}

// bind decodes the call arguments into v.
func bind(req mcp.CallToolRequest, v any) error {
	buf, err := json.Marshal(req.GetArguments())
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}
