package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/keyword"
	"github.com/dshills/coderag/internal/vectorstore"
	"github.com/dshills/coderag/pkg/types"
)

// DefaultVectorTimeout bounds query embedding plus vector search
const DefaultVectorTimeout = 5 * time.Second

// Snapshot is the read-only state searched by the Retriever. Indexing
// builds a new Snapshot and swaps it in; a Snapshot is never mutated.
type Snapshot struct {
	Keyword   *keyword.Index
	Vectors   vectorstore.Store // nil when there is no vector index
	Embedder  embedder.Embedder // query embedder, nil when vectors are unavailable
	IndexedAt time.Time

	readers sync.RWMutex // held for reading by searches in flight
}

// Drain waits until no search started on s is still running. Searches
// starting later never use s once it has been swapped out, so a drained
// snapshot's vector generation can be dropped.
func (s *Snapshot) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.readers.Lock()
		s.readers.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chunks returns the number of keyword-indexed chunks
func (s *Snapshot) Chunks() int {
	if s == nil || s.Keyword == nil {
		return 0
	}
	return s.Keyword.Len()
}

// vectorReady reports whether the snapshot can serve vector queries
func (s *Snapshot) vectorReady() error {
	switch {
	case s.Vectors == nil:
		return fmt.Errorf("%w: no vector index", types.ErrNotConfigured)
	case s.Embedder == nil:
		return fmt.Errorf("%w: no query embedder", types.ErrNotConfigured)
	case s.Embedder.Scheme() != s.Vectors.Scheme():
		return fmt.Errorf("%w: index %q, embedder %q", types.ErrStaleSnapshot, s.Vectors.Scheme(), s.Embedder.Scheme())
	}
	return nil
}

// Response carries results and the path that produced them
type Response struct {
	Results     []types.SearchResult
	Path        types.SearchPath
	VectorError string // why the vector path was skipped or failed, if it was
	Duration    time.Duration
	CacheHit    bool
}

// Options configures a Retriever
type Options struct {
	VectorTimeout time.Duration
	CacheSize     int // 0 disables the query cache
	Logger        *slog.Logger
}

// Retriever runs hybrid search over the current snapshot. Search never
// returns an error: vector failures fall through to keyword search and an
// empty result is tagged degraded.
type Retriever struct {
	snap          atomic.Pointer[Snapshot]
	cache         *queryCache
	vectorTimeout time.Duration
	logger        *slog.Logger
}

// New creates a Retriever holding an empty snapshot
func New(opts Options) *Retriever {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.VectorTimeout
	if timeout <= 0 {
		timeout = DefaultVectorTimeout
	}

	r := &Retriever{
		cache:         newQueryCache(opts.CacheSize),
		vectorTimeout: timeout,
		logger:        logger.With("component", "retriever"),
	}
	r.snap.Store(&Snapshot{Keyword: keyword.New()})
	return r
}

// Snapshot returns the snapshot currently served
func (r *Retriever) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Swap installs next and returns the previous snapshot so the caller can
// dispose of it. In-flight searches finish on whichever snapshot they loaded;
// call Drain on the returned snapshot before dropping its vectors.
func (r *Retriever) Swap(next *Snapshot) *Snapshot {
	if next == nil {
		next = &Snapshot{Keyword: keyword.New()}
	}
	if next.Keyword == nil {
		next.Keyword = keyword.New()
	}
	prev := r.snap.Swap(next)
	r.cache.purge()
	return prev
}

// acquire returns the served snapshot with a read lease the caller must
// release. The lease is only granted on a snapshot that is still current.
func (r *Retriever) acquire() *Snapshot {
	for {
		snap := r.snap.Load()
		snap.readers.RLock()
		if r.snap.Load() == snap {
			return snap
		}
		snap.readers.RUnlock()
	}
}

// vectorResult holds the outcome of the vector leg. skipped is set when
// the snapshot cannot serve vectors at all, as opposed to a failed attempt.
type vectorResult struct {
	results []types.SearchResult
	err     error
	skipped bool
}

// cacheable reports whether a response will stay valid for the life of
// its snapshot. Keyword results standing in for a failed vector attempt
// are not: the next identical query may reach the vector path.
func cacheable(resp Response, vec vectorResult) bool {
	switch resp.Path {
	case types.PathVector:
		return true
	case types.PathKeyword:
		return vec.skipped
	default:
		return false
	}
}

// Search returns up to k results for query
func (r *Retriever) Search(ctx context.Context, query string, k int) (resp Response) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("search panicked", "panic", rec, "query", query)
			resp = Response{
				Results:     []types.SearchResult{},
				Path:        types.PathDegraded,
				VectorError: fmt.Sprint(rec),
			}
		}
		resp.Duration = time.Since(start)
	}()

	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return Response{Results: []types.SearchResult{}, Path: types.PathDegraded}
	}

	snap := r.acquire()
	defer snap.readers.RUnlock()

	if cached, ok := r.cache.get(snap, query, k); ok {
		cached.CacheHit = true
		return cached
	}

	vectorChan := make(chan vectorResult, 1)
	go r.runVectorSearch(ctx, snap, query, k, vectorChan)

	var keywordResults []types.SearchResult
	if snap.Keyword != nil {
		keywordResults = snap.Keyword.Search(query, k)
	}

	vec := <-vectorChan

	resp = Response{}
	if vec.err != nil {
		resp.VectorError = vec.err.Error()
		r.logger.Warn("vector search unavailable, using keyword results", "reason", vec.err)
	}

	switch {
	case len(vec.results) > 0:
		resp.Results, resp.Path = vec.results, types.PathVector
	case len(keywordResults) > 0:
		resp.Results, resp.Path = keywordResults, types.PathKeyword
	default:
		resp.Results, resp.Path = []types.SearchResult{}, types.PathDegraded
	}

	r.logger.Debug("search complete", "path", resp.Path, "results", len(resp.Results))
	if cacheable(resp, vec) {
		r.cache.put(snap, query, k, resp)
	}
	return resp
}

// runVectorSearch embeds the query and searches the vector store. It
// recovers its own panics since it runs on a separate goroutine.
func (r *Retriever) runVectorSearch(ctx context.Context, snap *Snapshot, query string, k int, out chan<- vectorResult) {
	var res vectorResult
	defer func() {
		if rec := recover(); rec != nil {
			res = vectorResult{err: fmt.Errorf("vector search panicked: %v", rec)}
		}
		out <- res
	}()

	if err := snap.vectorReady(); err != nil {
		res.err, res.skipped = err, true
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.vectorTimeout)
	defer cancel()

	vec, err := snap.Embedder.Embed(ctx, query)
	if err != nil {
		res.err = fmt.Errorf("failed to generate query embedding: %w", err)
		return
	}

	res.results, res.err = snap.Vectors.Search(ctx, vec, k)
	if res.err == nil && len(res.results) == 0 {
		res.err = vectorstore.ErrEmpty
	}
}
