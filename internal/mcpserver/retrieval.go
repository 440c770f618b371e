package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lazypower/recall/internal/retrieval"
)

func queryOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("top_k", mcp.Description("Number of results to return"), mcp.Min(0)),
		mcp.WithObject("filters", mcp.Description("Metadata filters; entity_types and relation_types narrow graph results")),
	}
}

func (s *Server) registerRetrievalTools() {
	s.mcp.AddTool(mcp.NewTool("hybrid_search",
		append([]mcp.ToolOption{mcp.WithDescription("Fuse vector, graph and web results into one ranked list")}, queryOptions()...)...,
	), s.handleSearch(retrieval.ModeFusion))

	s.mcp.AddTool(mcp.NewTool("vector_search",
		append([]mcp.ToolOption{mcp.WithDescription("Semantic search over indexed documents")}, queryOptions()...)...,
	), s.handleSearch(retrieval.ModeVector))

	s.mcp.AddTool(mcp.NewTool("graph_search",
		append([]mcp.ToolOption{mcp.WithDescription("Search relations in the knowledge graph")}, queryOptions()...)...,
	), s.handleSearch(retrieval.ModeGraph))

	s.mcp.AddTool(mcp.NewTool("retrieve",
		append([]mcp.ToolOption{
			mcp.WithDescription("Retrieve with an explicit mode; unknown modes use fusion"),
			mcp.WithString("mode", mcp.Description("Retrieval mode"), mcp.Enum("vector", "graph", "hybrid", "fusion")),
		}, queryOptions()...)...,
	), s.handleRetrieve)

	s.mcp.AddTool(mcp.NewTool("enrich_context",
		mcp.WithDescription("Append retrieved information to an existing context"),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to look up")),
		mcp.WithString("context", mcp.Description("Existing context to extend")),
		mcp.WithNumber("top_k", mcp.Description("Number of results to append"), mcp.Min(0)),
	), s.handleEnrich)
}

type searchArgs struct {
	Query   string            `json:"query"`
	TopK    *int              `json:"top_k"`
	Mode    string            `json:"mode"`
	Filters retrieval.Filters `json:"filters"`
	Context *string           `json:"context"`
}

func (s *Server) searchArgs(req mcp.CallToolRequest) (searchArgs, *mcp.CallToolResult) {
	var args searchArgs
	if err := bind(req, &args); err != nil {
		return args, mcp.NewToolResultError("invalid arguments: " + err.Error())
	}
	if args.Query == "" {
		return args, mcp.NewToolResultError("query is required")
	}
	if args.TopK != nil && *args.TopK < 0 {
		return args, mcp.NewToolResultError("top_k must be >= 0")
	}
	if s.pipeline == nil {
		return args, mcp.NewToolResultError("retrieval pipeline not configured")
	}
	return args, nil
}

func (s *Server) handleSearch(mode retrieval.Mode) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, bad := s.searchArgs(req)
		if bad != nil {
			return bad, nil
		}
		return jsonResult(s.pipeline.Retrieve(ctx, retrieval.Request{
			Query:   args.Query,
			TopK:    args.TopK,
			Filters: args.Filters,
			Mode:    mode,
		}))
	}
}

func (s *Server) handleRetrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := s.searchArgs(req)
	if bad != nil {
		return bad, nil
	}
	return jsonResult(s.pipeline.Retrieve(ctx, retrieval.Request{
		Query:   args.Query,
		TopK:    args.TopK,
		Filters: args.Filters,
		Mode:    retrieval.Mode(args.Mode),
	}))
}

func (s *Server) handleEnrich(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, bad := s.searchArgs(req)
	if bad != nil {
		return bad, nil
	}
	return jsonResult(s.pipeline.EnrichContext(ctx, args.Query, args.Context, args.TopK))
}
