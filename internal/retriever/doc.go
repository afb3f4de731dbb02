// Package retriever is the hybrid search entry point. It holds the current
// index snapshot behind an atomic pointer, runs the vector and keyword
// legs concurrently, and tags every response with the path that produced
// it: vector, keyword or degraded.
package retriever
