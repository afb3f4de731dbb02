// Package reranker reorders retrieval candidates before answer synthesis.
//
// A remote Jina/Cohere-compatible rerank service is used when configured.
// Any remote failure switches the Reranker to its local heuristic for the
// rest of its life. Inputs of k or fewer candidates are returned as-is.
package reranker
