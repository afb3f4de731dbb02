package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/coderag/pkg/types"
)

// DefaultQdrantCollection is the collection name prefix when none is configured
const DefaultQdrantCollection = "coderag"

var errQdrantNotFound = errors.New("qdrant: not found")

// QdrantConfig configures the Qdrant backend
type QdrantConfig struct {
	URL        string
	Collection string // prefix; each generation gets <prefix>_<unix-nanos>
	StatePath  string // JSON file recording the committed collection
	Timeout    time.Duration
}

// qdrantClient is a minimal Qdrant REST client
type qdrantClient struct {
	baseURL    string
	httpClient *http.Client
}

type qdrantPayload struct {
	ID       string              `json:"id"`
	Content  string              `json:"content"`
	Metadata types.ChunkMetadata `json:"metadata"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

// pointID maps a chunk ID onto the UUID space Qdrant requires
func pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("coderag:"+id)).String()
}

func (c *qdrantClient) createCollection(ctx context.Context, collection string, dimension int) error {
	reqBody := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return c.doRequest(ctx, http.MethodPut, "/collections/"+collection, reqBody, nil)
}

func (c *qdrantClient) deleteCollection(ctx context.Context, collection string) error {
	err := c.doRequest(ctx, http.MethodDelete, "/collections/"+collection, nil, nil)
	if errors.Is(err, errQdrantNotFound) {
		return nil
	}
	return err
}

func (c *qdrantClient) listCollections(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, col := range resp.Result.Collections {
		names = append(names, col.Name)
	}
	return names, nil
}

// collectionDimension reports whether the collection exists and its vector size
func (c *qdrantClient) collectionDimension(ctx context.Context, collection string) (bool, int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	err := c.doRequest(ctx, http.MethodGet, "/collections/"+collection, nil, &resp)
	if errors.Is(err, errQdrantNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, resp.Result.Config.Params.Vectors.Size, nil
}

func (c *qdrantClient) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant request failed: %v", types.ErrServiceUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read qdrant response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return errQdrantNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant API error: %d %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse qdrant response: %w", err)
	}
	return nil
}

// qdrantState records the committed generation
type qdrantState struct {
	Collection      string `json:"collection"`
	EmbeddingScheme string `json:"embeddingScheme"`
	Dimension       int    `json:"dimension"`
	UpdatedAt       string `json:"updatedAt"`
}

func loadQdrantState(path string) (*qdrantState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state qdrantState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func saveQdrantState(path string, state *qdrantState) error {
	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// QdrantBackend creates one Qdrant collection per generation
type QdrantBackend struct {
	client    *qdrantClient
	prefix    string
	statePath string
}

// NewQdrantBackend creates a Qdrant backend. No request is made until the
// first generation is created or opened.
func NewQdrantBackend(cfg QdrantConfig) (*QdrantBackend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: qdrant url is required", types.ErrNotConfigured)
	}
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("%w: qdrant state path is required", types.ErrNotConfigured)
	}
	prefix := cfg.Collection
	if prefix == "" {
		prefix = DefaultQdrantCollection
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &QdrantBackend{
		client: &qdrantClient{
			baseURL:    strings.TrimRight(cfg.URL, "/"),
			httpClient: &http.Client{Timeout: timeout},
		},
		prefix:    prefix,
		statePath: cfg.StatePath,
	}, nil
}

func (b *QdrantBackend) Name() string {
	return BackendQdrant
}

func (b *QdrantBackend) NewGeneration(ctx context.Context, scheme string, dim int) (Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", ErrDimensionMismatch, dim)
	}

	collection := fmt.Sprintf("%s_%d", b.prefix, time.Now().UnixNano())
	if err := b.client.createCollection(ctx, collection, dim); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", collection, err)
	}
	return &QdrantStore{client: b.client, collection: collection, scheme: scheme, dim: dim}, nil
}

func (b *QdrantBackend) Open(ctx context.Context, scheme string) (Store, error) {
	state, err := loadQdrantState(b.statePath)
	if os.IsNotExist(err) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read qdrant state: %v", types.ErrStaleSnapshot, err)
	}
	if state.EmbeddingScheme != scheme {
		return nil, fmt.Errorf("%w: stored %q, embedder %q", types.ErrStaleSnapshot, state.EmbeddingScheme, scheme)
	}

	exists, dim, err := b.client.collectionDimension(ctx, state.Collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrEmpty
	}
	if dim > 0 && dim != state.Dimension {
		return nil, fmt.Errorf("%w: collection %s has dimension %d", types.ErrStaleSnapshot, state.Collection, dim)
	}

	return &QdrantStore{client: b.client, collection: state.Collection, scheme: scheme, dim: state.Dimension}, nil
}

// Commit points the state file at the generation's collection
func (b *QdrantBackend) Commit(ctx context.Context, s Store) error {
	store, ok := s.(*QdrantStore)
	if !ok {
		return fmt.Errorf("qdrant backend cannot commit %T", s)
	}
	return saveQdrantState(b.statePath, &qdrantState{
		Collection:      store.collection,
		EmbeddingScheme: store.scheme,
		Dimension:       store.dim,
	})
}

// generationStamp returns the creation time encoded in one of this
// backend's collection names
func (b *QdrantBackend) generationStamp(collection string) (int64, bool) {
	suffix, ok := strings.CutPrefix(collection, b.prefix+"_")
	if !ok {
		return 0, false
	}
	stamp, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return stamp, true
}

// Prune deletes this backend's collections created before keep
func (b *QdrantBackend) Prune(ctx context.Context, keep Store) error {
	store, ok := keep.(*QdrantStore)
	if !ok {
		return fmt.Errorf("qdrant backend cannot prune around %T", keep)
	}
	keepStamp, ok := b.generationStamp(store.collection)
	if !ok {
		return fmt.Errorf("collection %s does not belong to prefix %s", store.collection, b.prefix)
	}

	names, err := b.client.listCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range names {
		stamp, ok := b.generationStamp(name)
		if !ok || stamp >= keepStamp {
			continue
		}
		if err := b.client.deleteCollection(ctx, name); err != nil {
			return fmt.Errorf("delete collection %s: %w", name, err)
		}
	}
	return nil
}

func (b *QdrantBackend) Clear(ctx context.Context) error {
	state, err := loadQdrantState(b.statePath)
	if err == nil && state.Collection != "" {
		if err := b.client.deleteCollection(ctx, state.Collection); err != nil {
			return err
		}
	}
	if err := os.Remove(b.statePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove qdrant state: %w", err)
	}
	return nil
}

func (b *QdrantBackend) Close() error {
	b.client.httpClient.CloseIdleConnections()
	return nil
}

// QdrantStore is one generation stored as a Qdrant collection
type QdrantStore struct {
	client     *qdrantClient
	collection string
	scheme     string
	dim        int
}

// Collection returns the collection backing this generation
func (s *QdrantStore) Collection() string {
	return s.collection
}

func (s *QdrantStore) Upsert(ctx context.Context, docs []Document) error {
	if err := validateDocs(docs, s.dim); err != nil {
		return err
	}

	for start := 0; start < len(docs); start += BatchSize {
		end := start + BatchSize
		if end > len(docs) {
			end = len(docs)
		}

		points := make([]qdrantPoint, 0, end-start)
		for _, d := range docs[start:end] {
			points = append(points, qdrantPoint{
				ID:     pointID(d.ID),
				Vector: d.Embedding,
				Payload: qdrantPayload{
					ID:       d.ID,
					Content:  d.Content,
					Metadata: d.Metadata,
				},
			})
		}

		reqBody := map[string]interface{}{"points": points}
		path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection)
		if err := s.client.doRequest(ctx, http.MethodPut, path, reqBody, nil); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = pointID(id)
	}
	reqBody := map[string]interface{}{"points": points}
	return s.client.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection), reqBody, nil)
}

func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]types.SearchResult, error) {
	if k <= 0 {
		return []types.SearchResult{}, nil
	}
	if err := checkQuery(query, s.dim); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
	}

	var resp struct {
		Result []struct {
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}

	if err := s.client.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), reqBody, &resp); err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(resp.Result))
	for _, item := range resp.Result {
		results = append(results, types.SearchResult{
			ID:       item.Payload.ID,
			Content:  item.Payload.Content,
			Metadata: item.Payload.Metadata,
			Score:    item.Score,
		})
	}
	return rank(results, k), nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	reqBody := map[string]interface{}{"exact": true}
	if err := s.client.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", s.collection), reqBody, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *QdrantStore) Scheme() string {
	return s.scheme
}

func (s *QdrantStore) Dimension() int {
	return s.dim
}

// Drop deletes the generation's collection
func (s *QdrantStore) Drop(ctx context.Context) error {
	return s.client.deleteCollection(ctx, s.collection)
}

func (s *QdrantStore) Close() error {
	return nil
}
