package engine

import (
	"context"
	"time"

	"github.com/dshills/coderag/internal/indexer"
)

// Status describes what the engine is serving
type Status struct {
	Chunks            int                 `json:"chunks"`
	VectorDocs        int                 `json:"vectorDocs"`
	VectorReady       bool                `json:"vectorReady"`
	VectorBackend     string              `json:"vectorBackend"`
	EmbeddingProvider string              `json:"embeddingProvider"`
	EmbeddingScheme   string              `json:"embeddingScheme,omitempty"`
	RerankMode        string              `json:"rerankMode"`
	AnswerProvider    string              `json:"answerProvider"`
	Indexing          bool                `json:"indexing"`
	IndexedAt         *time.Time          `json:"indexedAt,omitempty"`
	LastIndex         *indexer.Statistics `json:"lastIndex,omitempty"`
}

// Status reports the served snapshot and component readiness
func (e *Engine) Status(ctx context.Context) Status {
	snap := e.retriever.Snapshot()

	st := Status{
		Chunks:            snap.Chunks(),
		VectorBackend:     e.backend.Name(),
		EmbeddingProvider: "none",
		RerankMode:        e.reranker.Mode(),
		AnswerProvider:    e.answers.CompleterName(),
		Indexing:          e.indexer.InProgress(),
	}
	if e.embedder != nil {
		st.EmbeddingProvider = e.embedder.Provider()
	}
	if !snap.IndexedAt.IsZero() {
		at := snap.IndexedAt
		st.IndexedAt = &at
	}

	if snap.Vectors != nil && snap.Embedder != nil {
		st.EmbeddingScheme = snap.Vectors.Scheme()
		st.VectorReady = snap.Embedder.Scheme() == snap.Vectors.Scheme()
		if n, err := snap.Vectors.Count(ctx); err == nil {
			st.VectorDocs = n
		} else {
			st.VectorReady = false
		}
	}

	e.mu.Lock()
	if e.lastIndex != nil {
		stats := *e.lastIndex
		st.LastIndex = &stats
	}
	e.mu.Unlock()

	return st
}
