// Package types provides shared type definitions for coderag.
//
// This package defines the domain types that flow through the retrieval
// pipeline: chunks built from code-graph symbols, search results, the
// reranked RAG sources handed to callers, and synthesized answers.
//
// # Chunks
//
// A Chunk is one retrievable symbol. Its ID is derived from the file path,
// the parent symbol name and the symbol name, so re-indexing unchanged
// source produces the same IDs and stores can upsert by ID:
//
//	id := types.ChunkID("internal/config/load.go", "Loader", "Parse")
//
// # Search Results
//
// SearchResult scores are path-dependent. Results from the vector path
// carry cosine similarity; results from the keyword path carry the boosted
// idf sum divided by 100. Callers that need a single scale use
// ClampRelevance, which is what RAGSource.RelevanceScore holds:
//
//	src := types.RAGSource{RelevanceScore: types.ClampRelevance(r.Score)}
//
// # Confidence
//
// Confidence is derived from the top relevance on the [0, 1] scale:
// high at or above 0.7, medium at or above 0.4, low otherwise.
//
// # Search Paths
//
// Every search and answer reports which path produced it: "vector",
// "keyword" or "degraded" (nothing found on either path).
package types
