// Package mcp implements the Model Context Protocol server for coderag.
//
// The server speaks JSON-RPC over stdio and exposes these tools:
//   - index_graph: index a code-graph JSON file or a Go source directory
//   - search_code: hybrid search over the index
//   - ask_question: answer a question, citing the relevant code
//   - get_status: index size, providers and vector availability
//   - clear_index: remove the index and its persisted state
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {"query": "where is config parsed", "limit": 5}
//	}
//
//	Response:
//	{
//	  "query": "where is config parsed",
//	  "path": "vector",
//	  "total": 1,
//	  "results": [
//	    {"name": "parseConfig", "type": "function", "file_path": "src/config.js",
//	     "start_line": 1, "end_line": 3, "score": 0.82, "snippet": "..."}
//	  ]
//	}
//
// "path" tells which retrieval path answered: vector, keyword, or degraded
// when nothing matched. When vector search was skipped or failed the reason
// is in "vector_error".
//
// # Error Handling
//
// Invalid arguments are returned as MCPError with JSON-RPC codes:
//
//	-32602: Invalid parameters
//	-32603: Internal error
//	-32001: Graph file or source directory unusable
//	-32002: Indexing already in progress
//	-32003: Graph file could not be parsed
//	-32004: Empty query or question
//
// Searching and asking never fail once arguments are valid; they degrade
// to keyword search and rule-based answers.
package mcp
