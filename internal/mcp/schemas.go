package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolIndexGraph  = "index_graph"
	ToolSearchCode  = "search_code"
	ToolAskQuestion = "ask_question"
	ToolGetStatus   = "get_status"
	ToolClearIndex  = "clear_index"
)

// Search limits
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// indexGraphTool returns the tool definition for index_graph
func indexGraphTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIndexGraph,
		Description: "Index a code graph so it can be searched and questioned. Pass either a code-graph JSON file or a Go source directory. Replaces the current index.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"graph_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a code-graph JSON file ({nodes, edges})",
				},
				"source_dir": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a Go project; a graph is built from its .go files",
				},
				"include_tests": map[string]interface{}{
					"type":        "boolean",
					"description": "With source_dir: if true, index *_test.go files",
					"default":     true,
				},
				"include_vendor": map[string]interface{}{
					"type":        "boolean",
					"description": "With source_dir: if true, index vendor/ directory",
					"default":     false,
				},
			},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearchCode,
		Description: "Search the indexed code with natural language or keyword queries. Uses vector search when available and keyword search otherwise.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     DefaultSearchLimit,
					"minimum":     1,
					"maximum":     MaxSearchLimit,
				},
			},
			Required: []string{"query"},
		},
	}
}

// askQuestionTool returns the tool definition for ask_question
func askQuestionTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolAskQuestion,
		Description: "Answer a question about the indexed code, citing the relevant code elements",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question about the codebase",
				},
			},
			Required: []string{"question"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolGetStatus,
		Description: "Report index size, active providers and whether vector search is available",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// clearIndexTool returns the tool definition for clear_index
func clearIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolClearIndex,
		Description: "Remove the index and everything persisted for it",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
