package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lazypower/recall/internal/store"
)

var (
	entitySchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":         map[string]any{"type": "string"},
			"entityType":   map[string]any{"type": "string"},
			"observations": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"name", "entityType"},
	}
	relationSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"from":         map[string]any{"type": "string"},
			"to":           map[string]any{"type": "string"},
			"relationType": map[string]any{"type": "string"},
		},
		"required": []string{"from", "to", "relationType"},
	}
	observationSchema = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entityName": map[string]any{"type": "string"},
			"contents":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"entityName", "contents"},
	}
)

func (s *Server) registerGraphTools() {
	s.mcp.AddTool(mcp.NewTool("create_entities",
		mcp.WithDescription("Create entities in the knowledge graph; existing names are skipped"),
		mcp.WithArray("entities", mcp.Required(), mcp.Items(entitySchema)),
	), s.graphTool(s.createEntities))

	s.mcp.AddTool(mcp.NewTool("create_relations",
		mcp.WithDescription("Create relations between existing entities"),
		mcp.WithArray("relations", mcp.Required(), mcp.Items(relationSchema)),
	), s.graphTool(s.createRelations))

	s.mcp.AddTool(mcp.NewTool("add_observations",
		mcp.WithDescription("Add observations to existing entities"),
		mcp.WithArray("observations", mcp.Required(), mcp.Items(observationSchema)),
	), s.graphTool(s.addObservations))

	s.mcp.AddTool(mcp.NewTool("read_graph",
		mcp.WithDescription("Read the whole knowledge graph"),
	), s.graphTool(func(context.Context, mcp.CallToolRequest) (any, error) {
		return s.db.ReadGraph()
	}))

	s.mcp.AddTool(mcp.NewTool("search_nodes",
		mcp.WithDescription("Find entities whose name, type or observations contain the query"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
	), s.graphTool(func(_ context.Context, req mcp.CallToolRequest) (any, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return nil, err
		}
		return s.db.SearchNodes(q)
	}))

	s.mcp.AddTool(mcp.NewTool("open_nodes",
		mcp.WithDescription("Open entities by name with the relations among them"),
		mcp.WithArray("names", mcp.Required(), mcp.Items(map[string]any{"type": "string"})),
	), s.graphTool(func(_ context.Context, req mcp.CallToolRequest) (any, error) {
		var args struct {
			Names []string `json:"names"`
		}
		if err := bind(req, &args); err != nil {
			return nil, err
		}
		return s.db.OpenNodes(args.Names)
	}))
}

// graphTool adapts a store call into a tool handler. Store and argument
// errors become tool errors.
func (s *Server) graphTool(fn func(context.Context, mcp.CallToolRequest) (any, error)) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.db == nil {
			return mcp.NewToolResultError("graph store not configured"), nil
		}
		v, err := fn(ctx, req)
		if err != nil {
			s.logger.Warn("graph tool failed", "tool", req.Params.Name, "err", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(v)
	}
}

func (s *Server) createEntities(_ context.Context, req mcp.CallToolRequest) (any, error) {
	var args struct {
		Entities []store.Entity `json:"entities"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	created, err := s.db.CreateEntities(args.Entities)
	if created == nil {
		created = []store.Entity{}
	}
	return created, err
}

func (s *Server) createRelations(_ context.Context, req mcp.CallToolRequest) (any, error) {
	var args struct {
		Relations []store.Relation `json:"relations"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	created, err := s.db.CreateRelations(args.Relations)
	if created == nil {
		created = []store.Relation{}
	}
	return created, err
}

type addedObservations struct {
	EntityName        string   `json:"entityName"`
	AddedObservations []string `json:"addedObservations"`
}

func (s *Server) addObservations(_ context.Context, req mcp.CallToolRequest) (any, error) {
	var args struct {
		Observations []struct {
			EntityName string   `json:"entityName"`
			Contents   []string `json:"contents"`
		} `json:"observations"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out := make([]addedObservations, 0, len(args.Observations))
	for _, o := range args.Observations {
		added, err := s.db.AddObservations(o.EntityName, o.Contents)
		if err != nil {
			return nil, err
		}
		if added == nil {
			added = []string{}
		}
		out = append(out, addedObservations{EntityName: o.EntityName, AddedObservations: added})
	}
	return out, nil
}
