package retriever

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/keyword"
	"github.com/dshills/coderag/internal/vectorstore"
	"github.com/dshills/coderag/pkg/types"
)

func scenarioChunks() []types.Chunk {
	return []types.Chunk{
		{
			ID:       types.ChunkID("src/config.js", "", "parseConfig"),
			Content:  "function parseConfig(text) { return JSON.parse(text) }",
			Metadata: types.ChunkMetadata{FilePath: "src/config.js", Name: "parseConfig", Type: types.ChunkFunction, StartLine: 1, EndLine: 3, Language: "javascript"},
		},
		{
			ID:       types.ChunkID("src/parser.js", "", "ConfigParser"),
			Content:  "class ConfigParser { constructor(opts) { this.opts = opts } parse(text) { return parseConfig(text) } }",
			Metadata: types.ChunkMetadata{FilePath: "src/parser.js", Name: "ConfigParser", Type: types.ChunkClass, StartLine: 1, EndLine: 12, Language: "javascript"},
		},
		{
			ID:       types.ChunkID("src/io.js", "", "loadFile"),
			Content:  "function loadFile(path) { return fs.readFileSync(path, 'utf8') }",
			Metadata: types.ChunkMetadata{FilePath: "src/io.js", Name: "loadFile", Type: types.ChunkFunction, StartLine: 4, EndLine: 6, Language: "javascript"},
		},
	}
}

// brokenStore stands in for an unreachable vector backend
type brokenStore struct {
	scheme string
	panics bool
}

func (b *brokenStore) Upsert(context.Context, []vectorstore.Document) error { return nil }
func (b *brokenStore) Delete(context.Context, []string) error               { return nil }
func (b *brokenStore) Search(context.Context, []float32, int) ([]types.SearchResult, error) {
	if b.panics {
		panic("corrupt index")
	}
	return nil, fmt.Errorf("%w: connection refused", types.ErrServiceUnavailable)
}
func (b *brokenStore) Count(context.Context) (int, error) { return 0, errors.New("unreachable") }
func (b *brokenStore) Scheme() string                     { return b.scheme }
func (b *brokenStore) Dimension() int                     { return embedder.LocalDimension }
func (b *brokenStore) Drop(context.Context) error         { return nil }
func (b *brokenStore) Close() error                       { return nil }

func vectorSnapshot(t *testing.T, chunks []types.Chunk) *Snapshot {
	t.Helper()
	ctx := context.Background()
	emb := embedder.NewLocalProvider()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.IndexText()
	}
	vecs, err := emb.EmbedBatch(ctx, texts)
	require.NoError(t, err)

	store := vectorstore.NewMemoryStore(emb.Scheme(), emb.Dimension())
	docs := make([]vectorstore.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorstore.FromChunk(c, vecs[i])
	}
	require.NoError(t, store.Upsert(ctx, docs))

	return &Snapshot{Keyword: keyword.Build(chunks), Vectors: store, Embedder: emb}
}

func TestSearch_ScenarioA_KeywordOnly(t *testing.T) {
	r := New(Options{})
	r.Swap(&Snapshot{Keyword: keyword.Build(scenarioChunks())})

	resp := r.Search(context.Background(), "parseConfig", 3)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "parseConfig", resp.Results[0].Metadata.Name)
	assert.Equal(t, types.PathKeyword, resp.Path)
	assert.NotEmpty(t, resp.VectorError)
}

func TestSearch_UnreachableVectorBackend(t *testing.T) {
	snap := &Snapshot{
		Keyword:  keyword.Build(scenarioChunks()),
		Vectors:  &brokenStore{scheme: embedder.NewLocalProvider().Scheme()},
		Embedder: embedder.NewLocalProvider(),
	}
	r := New(Options{})
	r.Swap(snap)

	for _, k := range []int{1, 2, 5} {
		resp := r.Search(context.Background(), "config parse", k)
		assert.LessOrEqual(t, len(resp.Results), k)
		assert.NotEmpty(t, resp.Results)
		assert.Equal(t, types.PathKeyword, resp.Path)
		assert.Contains(t, resp.VectorError, "connection refused")
	}
}

func TestSearch_VectorPanicIsContained(t *testing.T) {
	snap := &Snapshot{
		Keyword:  keyword.Build(scenarioChunks()),
		Vectors:  &brokenStore{scheme: embedder.NewLocalProvider().Scheme(), panics: true},
		Embedder: embedder.NewLocalProvider(),
	}
	r := New(Options{})
	r.Swap(snap)

	resp := r.Search(context.Background(), "loadFile", 2)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, types.PathKeyword, resp.Path)
	assert.Contains(t, resp.VectorError, "panicked")
}

func TestSearch_VectorPreferred(t *testing.T) {
	r := New(Options{})
	r.Swap(vectorSnapshot(t, scenarioChunks()))

	resp := r.Search(context.Background(), "read file from path", 2)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, types.PathVector, resp.Path)
	assert.Empty(t, resp.VectorError)
	assert.Equal(t, "loadFile", resp.Results[0].Metadata.Name)
}

func TestSearch_SchemeMismatchFallsBack(t *testing.T) {
	snap := vectorSnapshot(t, scenarioChunks())
	snap.Vectors = vectorstore.NewMemoryStore("openai/text-embedding-3-small/1536", 1536)

	r := New(Options{})
	r.Swap(snap)

	resp := r.Search(context.Background(), "parseConfig", 3)
	assert.Equal(t, types.PathKeyword, resp.Path)
	assert.Contains(t, resp.VectorError, "different embedding scheme")
}

func TestSearch_Degraded(t *testing.T) {
	r := New(Options{})

	tests := []struct {
		name  string
		query string
		k     int
	}{
		{"empty index", "parseConfig", 5},
		{"blank query", "   ", 5},
		{"zero k", "parseConfig", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := r.Search(context.Background(), tt.query, tt.k)
			assert.NotNil(t, resp.Results)
			assert.Empty(t, resp.Results)
			assert.Equal(t, types.PathDegraded, resp.Path)
		})
	}

	r.Swap(&Snapshot{Keyword: keyword.Build(scenarioChunks())})
	resp := r.Search(context.Background(), "zzzz qqqq", 5)
	assert.Equal(t, types.PathDegraded, resp.Path)
}

func TestSwap(t *testing.T) {
	r := New(Options{CacheSize: 10})
	first := &Snapshot{Keyword: keyword.Build(scenarioChunks()[:1])}
	second := &Snapshot{Keyword: keyword.Build(scenarioChunks())}

	initial := r.Swap(first)
	assert.Equal(t, 0, initial.Chunks())

	ctx := context.Background()
	resp := r.Search(ctx, "loadFile", 3)
	assert.Equal(t, types.PathDegraded, resp.Path)

	prev := r.Swap(second)
	assert.Same(t, first, prev)
	assert.Same(t, second, r.Snapshot())

	resp = r.Search(ctx, "loadFile", 3)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.CacheHit)

	again := r.Search(ctx, "loadFile", 3)
	assert.True(t, again.CacheHit)
	assert.Equal(t, resp.Results, again.Results)

	r.Swap(&Snapshot{Keyword: keyword.Build(scenarioChunks())})
	afterSwap := r.Search(ctx, "loadFile", 3)
	assert.False(t, afterSwap.CacheHit, "cache entries do not survive a swap")
}

func TestSwap_NilSnapshot(t *testing.T) {
	r := New(Options{})
	r.Swap(nil)
	resp := r.Search(context.Background(), "anything", 3)
	assert.Equal(t, types.PathDegraded, resp.Path)
}

// flakyEmbedder fails the first `failures` query embeddings, then recovers
type flakyEmbedder struct {
	embedder.Embedder
	failures int32
	calls    atomic.Int32
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, fmt.Errorf("%w: status 503", types.ErrServiceUnavailable)
	}
	return f.Embedder.Embed(ctx, text)
}

func TestSearch_FailedVectorAttemptIsNotCached(t *testing.T) {
	snap := vectorSnapshot(t, scenarioChunks())
	flaky := &flakyEmbedder{Embedder: snap.Embedder, failures: 1}
	snap.Embedder = flaky

	r := New(Options{CacheSize: 10})
	r.Swap(snap)
	ctx := context.Background()

	first := r.Search(ctx, "parseConfig", 2)
	assert.Equal(t, types.PathKeyword, first.Path)
	assert.Contains(t, first.VectorError, "status 503")

	second := r.Search(ctx, "parseConfig", 2)
	assert.Equal(t, types.PathVector, second.Path)
	assert.False(t, second.CacheHit)
	assert.Equal(t, int32(2), flaky.calls.Load())

	third := r.Search(ctx, "parseConfig", 2)
	assert.True(t, third.CacheHit)
	assert.Equal(t, types.PathVector, third.Path)
	assert.Equal(t, int32(2), flaky.calls.Load(), "vector results are served from cache")
}

func TestCacheable(t *testing.T) {
	tests := []struct {
		name string
		path types.SearchPath
		vec  vectorResult
		want bool
	}{
		{"vector", types.PathVector, vectorResult{}, true},
		{"keyword without vector index", types.PathKeyword, vectorResult{err: errors.New("no vector index"), skipped: true}, true},
		{"keyword after vector failure", types.PathKeyword, vectorResult{err: errors.New("timeout")}, false},
		{"degraded", types.PathDegraded, vectorResult{skipped: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cacheable(Response{Path: tt.path}, tt.vec))
		})
	}
}

func TestSnapshot_DrainWaitsForSearch(t *testing.T) {
	r := New(Options{})
	snap := &Snapshot{Keyword: keyword.Build(scenarioChunks())}
	r.Swap(snap)

	leased := r.acquire()
	require.Same(t, snap, leased)
	r.Swap(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, snap.Drain(ctx), context.DeadlineExceeded)

	leased.readers.RUnlock()
	assert.NoError(t, snap.Drain(context.Background()))

	// a retired snapshot never hands out new leases
	assert.NotSame(t, snap, r.acquire())
}
