package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/coderag/internal/chunker"
	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/graph"
	"github.com/dshills/coderag/internal/keyword"
	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/internal/vectorstore"
	"github.com/dshills/coderag/pkg/types"
)

// Errors returned by an indexing pass
var (
	ErrIndexingInProgress = errors.New("indexing already in progress")
	ErrInvalidChunk       = errors.New("invalid chunk")
)

// Indexer runs wholesale indexing passes: chunk -> keyword index and
// vector generation built concurrently -> snapshot
type Indexer struct {
	chunker  *chunker.Chunker
	embedder embedder.Embedder   // nil for keyword-only
	fallback embedder.Embedder   // used when embedder fails, may be nil
	backend  vectorstore.Backend // nil for keyword-only
	lock     IndexLock

	sourcePath string
	logger     *slog.Logger
}

// Config contains configuration for the indexer
type Config struct {
	Embedder embedder.Embedder
	Fallback embedder.Embedder
	Backend  vectorstore.Backend

	// KeywordSourcePath is where the keyword source file is written;
	// empty disables persistence
	KeywordSourcePath string

	Logger *slog.Logger
}

// Statistics describes one indexing pass
type Statistics struct {
	Chunks          int
	KeywordDocs     int
	VectorDocs      int
	EmbeddingScheme string
	UsedFallback    bool
	VectorError     string
	Duration        time.Duration
}

// Result is a completed pass: the snapshot to serve and its statistics
type Result struct {
	Snapshot *retriever.Snapshot
	Stats    Statistics
}

// New creates a new Indexer
func New(cfg Config) *Indexer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		chunker:    chunker.New(),
		embedder:   cfg.Embedder,
		fallback:   cfg.Fallback,
		backend:    cfg.Backend,
		sourcePath: cfg.KeywordSourcePath,
		logger:     logger.With("component", "indexer"),
	}
}

// InProgress reports whether a pass is running
func (idx *Indexer) InProgress() bool {
	return idx.lock.Held()
}

// IndexGraph chunks a code graph and indexes the chunks
func (idx *Indexer) IndexGraph(ctx context.Context, g *graph.Graph) (*Result, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil graph", graph.ErrInvalidGraph)
	}
	return idx.Index(ctx, idx.chunker.Chunk(g))
}

// Index builds a new snapshot from chunks. Vector failures never fail the
// pass: the snapshot is then keyword-only and Stats.VectorError says why.
func (idx *Indexer) Index(ctx context.Context, chunks []types.Chunk) (*Result, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %d (%s): %v", ErrInvalidChunk, i, chunks[i].ID, err)
		}
	}

	var (
		kw       *keyword.Index
		store    vectorstore.Store
		queryEmb embedder.Embedder
		stats    = Statistics{Chunks: len(chunks)}
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		kw = keyword.Build(chunks)
		if idx.sourcePath == "" {
			return nil
		}
		if err := kw.SaveSource(idx.sourcePath); err != nil {
			return fmt.Errorf("persist keyword source: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s, emb, fellBack, err := idx.buildVectors(gctx, chunks)
		stats.UsedFallback = fellBack
		if err != nil {
			stats.VectorError = err.Error()
			if !errors.Is(err, types.ErrNotConfigured) {
				idx.logger.Warn("vector index build failed, serving keyword only", "error", err)
			}
			return nil
		}
		store, queryEmb = s, emb
		return nil
	})

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if store != nil {
			_ = store.Drop(context.Background())
		}
		return nil, err
	}

	stats.KeywordDocs = kw.Len()
	if store != nil {
		stats.EmbeddingScheme = store.Scheme()
		if n, err := store.Count(ctx); err == nil {
			stats.VectorDocs = n
		}
	}
	stats.Duration = time.Since(startTime)

	idx.logger.Info("indexing pass complete",
		"chunks", stats.Chunks,
		"vector_docs", stats.VectorDocs,
		"scheme", stats.EmbeddingScheme,
		"fallback", stats.UsedFallback,
		"duration", stats.Duration)

	return &Result{
		Snapshot: &retriever.Snapshot{
			Keyword:   kw,
			Vectors:   store,
			Embedder:  queryEmb,
			IndexedAt: time.Now(),
		},
		Stats: stats,
	}, nil
}

// buildVectors embeds every chunk and writes a committed generation. When
// the primary embedder fails the fallback embedder is tried once.
func (idx *Indexer) buildVectors(ctx context.Context, chunks []types.Chunk) (vectorstore.Store, embedder.Embedder, bool, error) {
	if idx.backend == nil || (idx.embedder == nil && idx.fallback == nil) {
		return nil, nil, false, fmt.Errorf("%w: vector index disabled", types.ErrNotConfigured)
	}
	if len(chunks) == 0 {
		return nil, nil, false, fmt.Errorf("%w: no chunks to embed", types.ErrNotConfigured)
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].IndexText()
	}

	emb := idx.embedder
	fellBack := false
	var (
		vecs [][]float32
		err  error
	)
	if emb != nil {
		vecs, err = emb.EmbedBatch(ctx, texts)
	}
	if emb == nil || (err != nil && ctx.Err() == nil && idx.fallback != nil && idx.fallback.Scheme() != emb.Scheme()) {
		if err != nil {
			idx.logger.Warn("embedding failed, falling back", "provider", emb.Provider(), "fallback", idx.fallback.Provider(), "error", err)
		}
		emb, fellBack = idx.fallback, true
		vecs, err = emb.EmbedBatch(ctx, texts)
	}
	if err != nil {
		return nil, nil, fellBack, fmt.Errorf("embed chunks with %s: %w", emb.Provider(), err)
	}

	store, err := idx.backend.NewGeneration(ctx, emb.Scheme(), emb.Dimension())
	if err != nil {
		return nil, nil, fellBack, fmt.Errorf("create vector generation: %w", err)
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i := range chunks {
		docs[i] = vectorstore.FromChunk(chunks[i], vecs[i])
	}
	if err := store.Upsert(ctx, docs); err != nil {
		_ = store.Drop(context.Background())
		return nil, nil, fellBack, fmt.Errorf("store vectors: %w", err)
	}
	if err := idx.backend.Commit(ctx, store); err != nil {
		_ = store.Drop(context.Background())
		return nil, nil, fellBack, fmt.Errorf("commit vector generation: %w", err)
	}

	return store, emb, fellBack, nil
}
