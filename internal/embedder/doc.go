// Package embedder turns code chunks and queries into vectors.
//
// Three providers implement Embedder:
//
//   - OpenAIProvider: any OpenAI-compatible embeddings API (go-openai).
//   - JinaProvider: the Jina AI embeddings API over plain HTTP.
//   - LocalProvider: deterministic feature hashing, no network.
//
// Remote providers embed in sequential batches of up to 100 texts with a
// short pause between batches, truncate each text to 8,000 characters,
// retry each batch with exponential backoff and cache vectors by content
// hash. A failed batch fails the whole call; the indexer decides whether
// to fall back to the local provider.
//
// # Provider Selection
//
// New and Detect resolve Config.Provider:
//
//  1. openai, jina, local or none are used as given
//  2. auto (or empty) picks OpenAI when an OpenAI key is set
//  3. else Jina when a Jina key is set
//  4. else none, and the engine runs keyword-only
//
// # Schemes
//
// Scheme returns "provider/model/dimension". A vector store records the
// scheme it was built with, and queries are only embedded with an embedder
// whose scheme matches.
package embedder
