// Package vectorstore stores chunk embeddings and ranks them by cosine
// similarity.
//
// A Backend produces Store generations. Each indexing pass builds a fresh
// generation, commits it, and drops the previous one after readers have
// been switched over, so a search never sees a half-built index.
//
// Backends:
//
//   - memory: a map searched by brute force, persisted as a JSON snapshot
//     written to a temp file and renamed into place
//   - sqlite: generations and documents tables, vectors as little-endian
//     float32 blobs; pure Go driver by default, mattn/go-sqlite3 with the
//     sqlite_cgo build tag
//   - qdrant: one collection per generation, the committed collection
//     recorded in a JSON state file
//
// Opening a generation built with another embedding scheme returns
// types.ErrStaleSnapshot; callers treat that as "no vector index" and
// re-index.
package vectorstore
