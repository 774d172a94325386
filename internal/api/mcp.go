package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/matiasroig/casera/internal/memory"
)

// MCPMemory abstracts semantic memory for the MCP layer.
type MCPMemory interface {
	SearchSimilar(ctx context.Context, query string, topK int) []memory.Example
	AddExample(ctx context.Context, query, response, userFeedback string) bool
}

// MCPAnswerer runs a full grounded question/answer turn.
type MCPAnswerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Memory   MCPMemory
	Answerer MCPAnswerer // optional; if nil, the ask tool returns an error
}

// NewMCPServer creates an MCP server exposing the property assistant to
// local agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"casera",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("casera property assistant: ask about the house, recall approved answers, teach new ones."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question about the property and get a grounded answer."),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("recall_examples",
			mcp.WithDescription("Search previously approved answers similar to a query."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecallExamples(deps),
	)

	s.AddTool(
		mcp.NewTool("add_example",
			mcp.WithDescription("Store an approved question/answer pair for future retrieval."),
			mcp.WithString("question", mcp.Description("The question"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The approved answer"), mcp.Required()),
			mcp.WithString("note", mcp.Description("Optional provenance note")),
		),
		mcpAddExample(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Answerer == nil {
			return mcpError("ask not available: conversation engine not configured"), nil
		}

		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Answerer.Answer(ctx, question)
		if err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", err)), nil
		}
		return mcpText(answer), nil
	}
}

func mcpRecallExamples(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		examples := deps.Memory.SearchSimilar(ctx, query, limit)
		if len(examples) == 0 {
			return mcpText("[]"), nil
		}

		type exampleResult struct {
			ID        string  `json:"id"`
			Query     string  `json:"query"`
			Response  string  `json:"response"`
			Score     float64 `json:"score"`
			CreatedAt string  `json:"created_at,omitempty"`
		}

		results := make([]exampleResult, len(examples))
		for i, ex := range examples {
			results[i] = exampleResult{
				ID:        ex.ID,
				Query:     ex.Query,
				Response:  ex.Response,
				Score:     ex.Score,
				CreatedAt: ex.CreatedAt,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddExample(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}
		note := req.GetString("note", "Approved via MCP")

		if !deps.Memory.AddExample(ctx, question, answer, note) {
			return mcpError("storing example failed"), nil
		}
		return mcpText("Example stored."), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
