// Package mcpsrv exposes the search core over MCP, so an external agent can
// call unified_search and search_capabilities as ordinary tools.
package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"

	"unisearch/internal/capability"
	"unisearch/internal/orchestrator"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// SearchToolHandler registers the search tools on an MCP server.
type SearchToolHandler struct {
	orch     *orchestrator.Orchestrator
	registry *capability.Registry
	logger   *zap.Logger
}

// NewSearchToolHandler creates a new search tool handler.
func NewSearchToolHandler(orch *orchestrator.Orchestrator, registry *capability.Registry, logger *zap.Logger) *SearchToolHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchToolHandler{orch: orch, registry: registry, logger: logger}
}

// NewServer builds the MCP server and registers every search tool on it.
func NewServer(h *SearchToolHandler) *mcp.Server {
	impl := &mcp.Implementation{
		Name:    "unisearch",
		Version: "1.0.0",
	}
	server := mcp.NewServer(impl, &mcp.ServerOptions{HasTools: true})
	h.RegisterSearchTools(server)
	return server
}

// RegisterSearchTools registers unified_search and search_capabilities.
func (h *SearchToolHandler) RegisterSearchTools(server *mcp.Server) {
	h.registerUnifiedSearch(server)
	h.registerSearchCapabilities(server)
}

func (h *SearchToolHandler) registerUnifiedSearch(server *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "unified_search",
		Description: "Search across every registered personal data source (email, chat, calendar, tasks, browser history) and the web in one call. Returns a fused, ranked result list with per-phase timings, or a count/aggregate answer when the query asks for one.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Natural language search query (e.g. 'emails from Alice today', 'top senders this week')",
				},
				"conversation_context": {
					Type:        "string",
					Description: "Recent conversation transcript to derive the query from when no explicit query is given",
				},
				"max_results": {
					Type:        "number",
					Description: "Maximum number of fused results to return (default: 20, max: 50)",
				},
				"do_refinement": {
					Type:        "boolean",
					Description: "Whether weak result sets may trigger one automatic retry round (default: true)",
				},
			},
		},
	}

	server.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := extractArguments(req)
		if err != nil {
			return createErrorResult(fmt.Sprintf("failed to extract arguments: %s", err.Error())), nil
		}

		query, _ := args["query"].(string)
		conversationContext, _ := args["conversation_context"].(string)
		maxResults := 0
		if n, ok := args["max_results"].(float64); ok {
			maxResults = int(n)
		}
		doRefinement := true
		if b, ok := args["do_refinement"].(bool); ok {
			doRefinement = b
		}

		resp := h.orch.Search(ctx, conversationContext, query, maxResults, doRefinement)
		return createJSONResult(resp)
	})
}

func (h *SearchToolHandler) registerSearchCapabilities(server *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "search_capabilities",
		Description: "List every registered search source with its supported methods, filters, modes, and display label.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}

	server.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload := map[string]interface{}{
			"sources": h.registry.AllSources(),
			"labels":  h.registry.SourceLabelsForAgent(),
		}
		return createJSONResult(payload)
	})
}

// extractArguments safely extracts arguments from CallToolRequest
func extractArguments(req *mcp.CallToolRequest) (map[string]interface{}, error) {
	if req.Params.Arguments == nil || len(req.Params.Arguments) == 0 {
		return make(map[string]interface{}), nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(req.Params.Arguments, &result); err != nil {
		return nil, fmt.Errorf("arguments must be a valid JSON object: %w", err)
	}

	return result, nil
}

func createErrorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Error: %s", message)},
		},
		IsError: true,
	}
}

func createJSONResult(payload interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return createErrorResult(fmt.Sprintf("failed to encode result: %s", err.Error())), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}
