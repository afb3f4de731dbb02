package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dshills/coderag/pkg/types"
)

// Backend names
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"

	// BatchSize is the number of documents written per request or transaction
	BatchSize = 100
)

var (
	// ErrEmpty is returned by Open when no complete generation exists
	ErrEmpty = errors.New("no vector index")
	// ErrDimensionMismatch is returned when a vector does not match the store dimension
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrClosed is returned when using a store after Close or Drop
	ErrClosed = errors.New("vector store closed")
)

// Document is a chunk with its embedding
type Document struct {
	ID        string              `json:"id"`
	Content   string              `json:"content"`
	Embedding []float32           `json:"embedding"`
	Metadata  types.ChunkMetadata `json:"metadata"`
}

// FromChunk pairs a chunk with its vector
func FromChunk(c types.Chunk, vec []float32) Document {
	return Document{
		ID:        c.ID,
		Content:   c.Content,
		Embedding: vec,
		Metadata:  c.Metadata,
	}
}

// Store is one generation of vectors. All documents share one dimension
// and one embedding scheme.
type Store interface {
	// Upsert inserts or replaces documents by ID
	Upsert(ctx context.Context, docs []Document) error

	// Delete removes documents by ID; unknown IDs are ignored
	Delete(ctx context.Context, ids []string) error

	// Search returns up to k documents by descending cosine similarity
	Search(ctx context.Context, query []float32, k int) ([]types.SearchResult, error)

	// Count returns the number of stored documents
	Count(ctx context.Context) (int, error)

	// Scheme returns the embedding scheme this generation was built with
	Scheme() string

	// Dimension returns the vector dimension of this generation
	Dimension() int

	// Drop discards this generation and its persisted data
	Drop(ctx context.Context) error

	// Close releases the store without discarding persisted data
	Close() error
}

// Backend creates and reopens store generations
type Backend interface {
	// Name returns the backend name
	Name() string

	// NewGeneration creates an empty, uncommitted generation
	NewGeneration(ctx context.Context, scheme string, dim int) (Store, error)

	// Open returns the latest committed generation. It returns ErrEmpty
	// when none exists and types.ErrStaleSnapshot when the persisted data
	// was built with another scheme or cannot be read.
	Open(ctx context.Context, scheme string) (Store, error)

	// Commit marks a generation complete so later Opens return it
	Commit(ctx context.Context, s Store) error

	// Prune removes every generation created before keep, committed or
	// not, including ones built with another scheme that Open rejected
	Prune(ctx context.Context, keep Store) error

	// Clear removes every generation and all persisted state
	Clear(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Config selects and configures a backend
type Config struct {
	Backend          string
	SnapshotPath     string // memory
	SQLitePath       string // sqlite
	QdrantURL        string // qdrant
	QdrantCollection string
	QdrantStatePath  string
	Timeout          time.Duration
}

// New creates the configured backend
func New(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryBackend(cfg.SnapshotPath), nil
	case BackendSQLite:
		return NewSQLiteBackend(ctx, cfg.SQLitePath)
	case BackendQdrant:
		return NewQdrantBackend(QdrantConfig{
			URL:        cfg.QdrantURL,
			Collection: cfg.QdrantCollection,
			StatePath:  cfg.QdrantStatePath,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", types.ErrNotConfigured, cfg.Backend)
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rank sorts results by descending score, ties by ID, and keeps the top k
func rank(results []types.SearchResult, k int) []types.SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func validateDocs(docs []Document, dim int) error {
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("%w: document without id", types.ErrInvalidChunkID)
		}
		if len(d.Embedding) != dim {
			return fmt.Errorf("%w: document %s has %d, store has %d", ErrDimensionMismatch, d.ID, len(d.Embedding), dim)
		}
	}
	return nil
}

func checkQuery(query []float32, dim int) error {
	if len(query) != dim {
		return fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}

func toResult(d Document, score float64) types.SearchResult {
	return types.SearchResult{
		ID:       d.ID,
		Content:  d.Content,
		Metadata: d.Metadata,
		Score:    score,
	}
}
