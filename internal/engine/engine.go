package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dshills/coderag/internal/answer"
	"github.com/dshills/coderag/internal/config"
	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/graph"
	"github.com/dshills/coderag/internal/indexer"
	"github.com/dshills/coderag/internal/keyword"
	"github.com/dshills/coderag/internal/reranker"
	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/internal/vectorstore"
	"github.com/dshills/coderag/pkg/types"
)

// ErrClosed is returned by operations on a closed Engine
var ErrClosed = errors.New("engine is closed")

// disposeTimeout bounds waiting for in-flight searches and backend cleanup
const disposeTimeout = 30 * time.Second

// Engine owns every retrieval component. It is built once by New and
// released by Close; nothing is created lazily.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	embedder embedder.Embedder // nil when vectors are disabled
	fallback embedder.Embedder // nil unless local fallback applies
	backend  vectorstore.Backend

	indexer   *indexer.Indexer
	retriever *retriever.Retriever
	reranker  *reranker.Reranker
	answers   *answer.Synthesizer

	mu        sync.Mutex // guards lastIndex and snapshot disposal
	lastIndex *indexer.Statistics

	closeOnce sync.Once
	closed    bool
}

// New builds the component registry from cfg and loads any persisted index
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{cfg: cfg, logger: logger.With("component", "engine")}

	primary, err := embedder.New(embedder.Config{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		OpenAIKey:  cfg.Embedding.OpenAIKey,
		JinaKey:    cfg.Embedding.JinaKey,
		Dimension:  cfg.Embedding.Dimension,
		CacheSize:  cfg.Embedding.CacheSize,
		BatchSize:  cfg.Embedding.BatchSize,
		BatchDelay: cfg.Embedding.BatchDelay,
	})
	switch {
	case errors.Is(err, types.ErrNotConfigured):
		e.logger.Info("no embedding provider configured, search is keyword only")
	case err != nil:
		return nil, fmt.Errorf("create embedder: %w", err)
	default:
		e.embedder = primary
		if cfg.Embedding.LocalFallback && primary.Provider() != embedder.ProviderLocal {
			e.fallback = embedder.NewLocalProvider()
		}
	}

	backend, err := vectorstore.New(ctx, vectorstore.Config{
		Backend:          cfg.Vector.Backend,
		SnapshotPath:     cfg.SnapshotPath(),
		SQLitePath:       cfg.SQLitePath(),
		QdrantURL:        cfg.Vector.QdrantURL,
		QdrantCollection: cfg.Vector.QdrantCollection,
		QdrantStatePath:  cfg.QdrantStatePath(),
		Timeout:          cfg.Vector.Timeout,
	})
	if err != nil {
		e.closeEmbedders()
		return nil, fmt.Errorf("create vector backend: %w", err)
	}
	e.backend = backend

	completer, err := answer.NewCompleter(answer.Config{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		_ = backend.Close()
		e.closeEmbedders()
		return nil, fmt.Errorf("create completer: %w", err)
	}

	e.indexer = indexer.New(indexer.Config{
		Embedder:          e.embedder,
		Fallback:          e.fallback,
		Backend:           backend,
		KeywordSourcePath: cfg.KeywordSourcePath(),
		Logger:            logger,
	})
	e.retriever = retriever.New(retriever.Options{
		VectorTimeout: cfg.Search.VectorTimeout,
		CacheSize:     cfg.Search.CacheSize,
		Logger:        logger,
	})
	e.reranker = reranker.New(reranker.NewClient(reranker.Config{
		URL:     cfg.Rerank.URL,
		APIKey:  cfg.Rerank.APIKey,
		Model:   cfg.Rerank.Model,
		Timeout: cfg.Rerank.Timeout,
	}), logger)
	e.answers = answer.NewSynthesizer(e.retriever, e.reranker, completer, logger)

	e.retriever.Swap(e.loadSnapshot(ctx))
	return e, nil
}

// loadSnapshot restores the persisted keyword source and the latest
// committed vector generation. Anything unusable is logged and skipped.
func (e *Engine) loadSnapshot(ctx context.Context) *retriever.Snapshot {
	snap := &retriever.Snapshot{}

	kw, err := keyword.LoadSource(e.cfg.KeywordSourcePath())
	if err != nil {
		e.logger.Warn("keyword source unreadable, starting empty", "path", e.cfg.KeywordSourcePath(), "error", err)
		kw = keyword.New()
	}
	snap.Keyword = kw
	if kw.Len() > 0 {
		if info, err := os.Stat(e.cfg.KeywordSourcePath()); err == nil {
			snap.IndexedAt = info.ModTime()
		}
	}

	var lastErr error
	for _, emb := range []embedder.Embedder{e.embedder, e.fallback} {
		if emb == nil {
			continue
		}
		store, err := e.backend.Open(ctx, emb.Scheme())
		if err == nil {
			snap.Vectors, snap.Embedder = store, emb
			return snap
		}
		lastErr = err
	}

	switch {
	case lastErr == nil, errors.Is(lastErr, vectorstore.ErrEmpty):
	case errors.Is(lastErr, types.ErrStaleSnapshot):
		e.logger.Warn("persisted vectors unusable, re-index to restore vector search", "error", lastErr)
	default:
		e.logger.Warn("could not open vector index", "backend", e.backend.Name(), "error", lastErr)
	}
	return snap
}

// Index replaces the index with chunks
func (e *Engine) Index(ctx context.Context, chunks []types.Chunk) (*indexer.Statistics, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	res, err := e.indexer.Index(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return e.install(res), nil
}

// IndexGraph chunks g and replaces the index with its chunks
func (e *Engine) IndexGraph(ctx context.Context, g *graph.Graph) (*indexer.Statistics, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	res, err := e.indexer.IndexGraph(ctx, g)
	if err != nil {
		return nil, err
	}
	return e.install(res), nil
}

// IndexGraphFile indexes a code-graph JSON file
func (e *Engine) IndexGraphFile(ctx context.Context, path string) (*indexer.Statistics, error) {
	g, err := graph.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return e.IndexGraph(ctx, g)
}

// IndexGoSource builds a graph from the Go files under dir and indexes it
func (e *Engine) IndexGoSource(ctx context.Context, dir string, opts graph.GoSourceOptions) (*indexer.Statistics, error) {
	g, err := graph.FromGoSource(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	return e.IndexGraph(ctx, g)
}

// install swaps in a finished pass, retires the generation it replaces
// and prunes anything older from the backend
func (e *Engine) install(res *indexer.Result) *indexer.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.retriever.Swap(res.Snapshot)
	e.retire(prev, res.Snapshot)

	ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancel()
	if next := res.Snapshot.Vectors; next != nil {
		// also removes generations Open rejected for their scheme
		if err := e.backend.Prune(ctx, next); err != nil {
			e.logger.Warn("failed to prune old vector generations", "error", err)
		}
	} else if err := e.backend.Clear(ctx); err != nil {
		// a keyword-only pass must not leave older vectors to be reloaded
		e.logger.Warn("failed to clear stale vector state", "error", err)
	}

	stats := res.Stats
	e.lastIndex = &stats
	return &stats
}

// retire waits for searches still running on prev, then drops its vector
// generation unless next shares it
func (e *Engine) retire(prev, next *retriever.Snapshot) {
	if prev == nil || prev.Vectors == nil {
		return
	}
	if next != nil && prev.Vectors == next.Vectors {
		return
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancelDrain()
	if err := prev.Drain(drainCtx); err != nil {
		e.logger.Warn("searches still running on the previous generation, dropping it anyway", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancel()
	if err := prev.Vectors.Drop(ctx); err != nil {
		e.logger.Warn("failed to drop previous vector generation", "error", err)
	}
}

// Search runs hybrid search. k <= 0 uses the configured default limit.
func (e *Engine) Search(ctx context.Context, query string, k int) retriever.Response {
	if k <= 0 {
		k = e.cfg.Search.DefaultLimit
	}
	return e.retriever.Search(ctx, query, k)
}

// Answer answers a question about the indexed code
func (e *Engine) Answer(ctx context.Context, question string) types.Answer {
	return e.answers.Answer(ctx, question)
}

// Clear removes the served index and everything persisted
func (e *Engine) Clear(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}
	if e.indexer.InProgress() {
		return indexer.ErrIndexingInProgress
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.retriever.Swap(nil)
	e.retire(prev, nil)
	e.lastIndex = nil

	if err := e.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear vector backend: %w", err)
	}
	if err := os.Remove(e.cfg.KeywordSourcePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove keyword source: %w", err)
	}
	return nil
}

// Close releases the backend and embedders. It is safe to call twice.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		if snap := e.retriever.Snapshot(); snap != nil && snap.Vectors != nil {
			ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
			_ = snap.Drain(ctx)
			cancel()
			_ = snap.Vectors.Close()
		}
		err = e.backend.Close()
		e.closeEmbedders()
	})
	return err
}

func (e *Engine) closeEmbedders() {
	for _, emb := range []embedder.Embedder{e.embedder, e.fallback} {
		if emb != nil {
			_ = emb.Close()
		}
	}
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
