package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dshills/coderag/pkg/types"
)

// MemoryStore keeps vectors in a map and searches by brute-force cosine
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]Document
	scheme string
	dim    int
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(scheme string, dim int) *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]Document),
		scheme: scheme,
		dim:    dim,
	}
}

func (m *MemoryStore) Upsert(ctx context.Context, docs []Document) error {
	if err := validateDocs(docs, m.dim); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]types.SearchResult, error) {
	if k <= 0 {
		return []types.SearchResult{}, nil
	}
	if err := checkQuery(query, m.dim); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	results := make([]types.SearchResult, 0, len(m.docs))
	for _, d := range m.docs {
		results = append(results, toResult(d, CosineSimilarity(query, d.Embedding)))
	}
	return rank(results, k), nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

func (m *MemoryStore) Scheme() string {
	return m.scheme
}

func (m *MemoryStore) Dimension() int {
	return m.dim
}

// Drop empties the store. The snapshot file belongs to the backend and is
// left alone, since a newer generation may already have replaced it.
func (m *MemoryStore) Drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[string]Document)
	m.closed = true
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) documents() []Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out
}

// snapshot is the on-disk form of a memory store
type snapshot struct {
	Documents       []Document `json:"documents"`
	IndexedAt       time.Time  `json:"indexedAt"`
	EmbeddingScheme string     `json:"embeddingScheme"`
	Dimension       int        `json:"dimension"`
}

// MemoryBackend holds generations in memory and persists the committed one
// as a JSON snapshot. An empty path disables persistence.
type MemoryBackend struct {
	path string
}

// NewMemoryBackend creates a memory backend persisting to path
func NewMemoryBackend(path string) *MemoryBackend {
	return &MemoryBackend{path: path}
}

func (b *MemoryBackend) Name() string {
	return BackendMemory
}

func (b *MemoryBackend) NewGeneration(ctx context.Context, scheme string, dim int) (Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrDimensionMismatch, dim)
	}
	return NewMemoryStore(scheme, dim), nil
}

func (b *MemoryBackend) Open(ctx context.Context, scheme string) (Store, error) {
	if b.path == "" {
		return nil, ErrEmpty
	}

	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read vector snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: parse vector snapshot: %v", types.ErrStaleSnapshot, err)
	}
	if snap.EmbeddingScheme != scheme {
		return nil, fmt.Errorf("%w: snapshot %q, embedder %q", types.ErrStaleSnapshot, snap.EmbeddingScheme, scheme)
	}

	dim := snap.Dimension
	if dim == 0 && len(snap.Documents) > 0 {
		dim = len(snap.Documents[0].Embedding)
	}
	store := NewMemoryStore(scheme, dim)
	if err := store.Upsert(ctx, snap.Documents); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStaleSnapshot, err)
	}
	return store, nil
}

// Commit writes the snapshot to a temp file and renames it into place
func (b *MemoryBackend) Commit(ctx context.Context, s Store) error {
	if b.path == "" {
		return nil
	}
	store, ok := s.(*MemoryStore)
	if !ok {
		return fmt.Errorf("memory backend cannot commit %T", s)
	}

	data, err := json.Marshal(snapshot{
		Documents:       store.documents(),
		IndexedAt:       time.Now().UTC(),
		EmbeddingScheme: store.Scheme(),
		Dimension:       store.Dimension(),
	})
	if err != nil {
		return fmt.Errorf("marshal vector snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write vector snapshot: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace vector snapshot: %w", err)
	}
	return nil
}

// Prune is a no-op: Commit overwrites the only persisted generation
func (b *MemoryBackend) Prune(ctx context.Context, keep Store) error {
	return nil
}

func (b *MemoryBackend) Clear(ctx context.Context) error {
	if b.path == "" {
		return nil
	}
	if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove vector snapshot: %w", err)
	}
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
