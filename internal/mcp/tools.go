package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/coderag/internal/graph"
	"github.com/dshills/coderag/internal/indexer"
	"github.com/dshills/coderag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound       = -32001 // Graph file or source directory is unusable
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeInvalidGraph       = -32003 // Graph file could not be parsed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// snippetChars bounds the content returned per search result
const snippetChars = 400

// handleIndexGraph handles the index_graph tool invocation
func (s *Server) handleIndexGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	graphPath := getStringDefault(args, "graph_path", "")
	sourceDir := getStringDefault(args, "source_dir", "")
	if (graphPath == "") == (sourceDir == "") {
		return nil, newMCPError(ErrorCodeInvalidParams, "exactly one of graph_path or source_dir is required", map[string]interface{}{
			"param":  "graph_path|source_dir",
			"reason": "missing or both given",
		})
	}

	var (
		stats *indexer.Statistics
		err   error
	)
	if graphPath != "" {
		if verr := validateGraphPath(graphPath); verr != nil {
			return nil, newMCPError(ErrorCodePathNotFound, "invalid graph_path", map[string]interface{}{
				"param":  "graph_path",
				"reason": verr.Error(),
			})
		}
		stats, err = s.engine.IndexGraphFile(ctx, graphPath)
	} else {
		if verr := validateSourceDir(sourceDir); verr != nil {
			return nil, newMCPError(ErrorCodePathNotFound, "invalid source_dir", map[string]interface{}{
				"param":  "source_dir",
				"reason": verr.Error(),
			})
		}
		stats, err = s.engine.IndexGoSource(ctx, sourceDir, graph.GoSourceOptions{
			IncludeTests:  getBoolDefault(args, "include_tests", true),
			IncludeVendor: getBoolDefault(args, "include_vendor", false),
		})
	}

	switch {
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, graph.ErrInvalidGraph):
		return nil, newMCPError(ErrorCodeInvalidGraph, "graph could not be read", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":          true,
		"chunks_created":   stats.Chunks,
		"keyword_docs":     stats.KeywordDocs,
		"vector_docs":      stats.VectorDocs,
		"embedding_scheme": stats.EmbeddingScheme,
		"used_fallback":    stats.UsedFallback,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	if stats.VectorError != "" {
		response["vector_error"] = stats.VectorError
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := strings.TrimSpace(getStringDefault(args, "query", ""))
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", DefaultSearchLimit)
	if limit < 1 || limit > MaxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	resp := s.engine.Search(ctx, query, limit)

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"id":         r.ID,
			"name":       r.Metadata.Name,
			"type":       r.Metadata.Type,
			"file_path":  r.Metadata.FilePath,
			"start_line": r.Metadata.StartLine,
			"end_line":   r.Metadata.EndLine,
			"score":      r.Score,
			"snippet":    snippet(r.Content),
		})
	}

	response := map[string]interface{}{
		"query":       query,
		"path":        resp.Path,
		"total":       len(results),
		"results":     results,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if resp.VectorError != "" {
		response["vector_error"] = resp.VectorError
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAskQuestion handles the ask_question tool invocation
func (s *Server) handleAskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question := strings.TrimSpace(getStringDefault(args, "question", ""))
	if question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	ans := s.engine.Answer(ctx, question)
	if ans.RelevantNodes == nil {
		ans.RelevantNodes = []types.RAGSource{}
	}

	return mcp.NewToolResultText(formatJSON(ans)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := s.engine.Status(ctx)

	response := map[string]interface{}{
		"indexed": status.Chunks > 0,
		"status":  status,
	}
	if status.Chunks == 0 {
		response["message"] = "Nothing indexed. Use the index_graph tool first."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearIndex handles the clear_index tool invocation
func (s *Server) handleClearIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	err := s.engine.Clear(ctx)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing in progress, try again when it finishes", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to clear index", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"cleared": true})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateGraphPath checks that a graph file exists and is a regular file
func validateGraphPath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrNotFile
	}
	return nil
}

// validateSourceDir checks that a directory exists and contains Go files
func validateSourceDir(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	hasGoFiles := false
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(p, ".go") {
			hasGoFiles = true
			return filepath.SkipAll
		}
		return nil
	})
	if !hasGoFiles {
		return ErrNoGoFiles
	}
	return nil
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetChars {
		return content
	}
	return string(runes[:snippetChars]) + "..."
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNotFile         = errors.New("path is a directory, expected a file")
	ErrNoGoFiles       = errors.New("directory does not contain Go files")
)
