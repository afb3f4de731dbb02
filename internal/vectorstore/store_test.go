package vectorstore

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/pkg/types"
)

const testScheme = "local/feature-hash-v1/3"

func testDocs() []Document {
	return []Document{
		{
			ID:        "chunk_a",
			Content:   "func A() {}",
			Embedding: []float32{1, 0, 0},
			Metadata:  types.ChunkMetadata{FilePath: "a.go", Name: "A", Type: types.ChunkFunction, StartLine: 1, EndLine: 1},
		},
		{
			ID:        "chunk_b",
			Content:   "func B() {}",
			Embedding: []float32{0.7, 0.7, 0},
			Metadata:  types.ChunkMetadata{FilePath: "b.go", Name: "B", Type: types.ChunkFunction, StartLine: 3, EndLine: 5},
		},
		{
			ID:        "chunk_c",
			Content:   "type C struct{}",
			Embedding: []float32{0, 0, 1},
			Metadata:  types.ChunkMetadata{FilePath: "c.go", Name: "C", Type: types.ChunkClass, StartLine: 2, EndLine: 9},
		},
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestMemoryStore_Search(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testScheme, 3)
	require.NoError(t, store.Upsert(ctx, testDocs()))

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "chunk_a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "chunk_b", results[1].ID)
	assert.InDelta(t, 1/math.Sqrt2, results[1].Score, 1e-5)
	assert.Equal(t, "a.go", results[0].Metadata.FilePath)

	empty, err := store.Search(ctx, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStore_UpsertReplacesAndDeletes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testScheme, 3)
	require.NoError(t, store.Upsert(ctx, testDocs()))

	replaced := testDocs()[0]
	replaced.Content = "func A() { return }"
	require.NoError(t, store.Upsert(ctx, []Document{replaced}))

	n, _ := store.Count(ctx)
	assert.Equal(t, 3, n)

	require.NoError(t, store.Delete(ctx, []string{"chunk_c", "missing"}))
	n, _ = store.Count(ctx)
	assert.Equal(t, 2, n)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "func A() { return }", results[0].Content)
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testScheme, 3)

	err := store.Upsert(ctx, []Document{{ID: "x", Embedding: []float32{1, 2}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.Search(ctx, []float32{1, 2}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryStore_TiesBreakByID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testScheme, 2)
	require.NoError(t, store.Upsert(ctx, []Document{
		{ID: "z", Embedding: []float32{1, 0}},
		{ID: "m", Embedding: []float32{2, 0}},
		{ID: "a", Embedding: []float32{3, 0}},
	}))

	results, err := store.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "m", "z"}, []string{results[0].ID, results[1].ID, results[2].ID})
}

func TestMemoryBackend_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.json")
	backend := NewMemoryBackend(path)

	store, err := backend.NewGeneration(ctx, testScheme, 3)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, testDocs()))
	require.NoError(t, backend.Commit(ctx, store))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	reopened, err := NewMemoryBackend(path).Open(ctx, testScheme)
	require.NoError(t, err)
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want, _ := store.Search(ctx, []float32{0, 1, 1}, 3)
	got, err := reopened.Search(ctx, []float32{0, 1, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMemoryBackend_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("missing snapshot", func(t *testing.T) {
		_, err := NewMemoryBackend(filepath.Join(t.TempDir(), "none.json")).Open(ctx, testScheme)
		assert.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("no path", func(t *testing.T) {
		_, err := NewMemoryBackend("").Open(ctx, testScheme)
		assert.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("scheme mismatch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vectors.json")
		backend := NewMemoryBackend(path)
		store, err := backend.NewGeneration(ctx, testScheme, 3)
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, testDocs()))
		require.NoError(t, backend.Commit(ctx, store))

		_, err = backend.Open(ctx, "openai/text-embedding-3-small/1536")
		assert.ErrorIs(t, err, types.ErrStaleSnapshot)
	})

	t.Run("malformed snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vectors.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"documents": [`), 0644))

		_, err := NewMemoryBackend(path).Open(ctx, testScheme)
		assert.ErrorIs(t, err, types.ErrStaleSnapshot)
	})
}

func TestMemoryBackend_Clear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.json")
	backend := NewMemoryBackend(path)

	store, err := backend.NewGeneration(ctx, testScheme, 3)
	require.NoError(t, err)
	require.NoError(t, backend.Commit(ctx, store))

	require.NoError(t, backend.Clear(ctx))
	_, err = backend.Open(ctx, testScheme)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.NoError(t, backend.Clear(ctx), "clearing twice is fine")
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	b, err := New(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, b.Name())

	_, err = New(ctx, Config{Backend: "pinecone"})
	assert.ErrorIs(t, err, types.ErrNotConfigured)

	_, err = New(ctx, Config{Backend: BackendQdrant})
	assert.ErrorIs(t, err, types.ErrNotConfigured)
}
