package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
	ProviderNone   = "none"
	ProviderAuto   = "auto"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v2-base-code"
	DefaultOpenAIModel = "text-embedding-3-small"
	LocalModel         = "feature-hash-v1"

	// Dimensions
	JinaDimension   = 768
	OpenAIDimension = 1536
	LocalDimension  = 256

	// DefaultJinaURL is the Jina embeddings endpoint
	DefaultJinaURL = "https://api.jina.ai/v1/embeddings"

	// Batch limits
	DefaultBatchSize  = 100
	MaxBatchSize      = 100
	MaxTextChars      = 8000
	DefaultBatchDelay = 200 * time.Millisecond

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// remote holds the batching, caching and retry shared by API-backed providers
type remote struct {
	cache     *Cache
	batch     batchOptions
	dimension int
}

type batchOptions struct {
	size  int
	delay time.Duration
	retry RetryConfig
}

type callFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedAll resolves cache hits, then embeds the misses in sequential
// batches with a pause between batches. The first failing batch aborts.
func (r *remote) embedAll(ctx context.Context, texts []string, call callFunc) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))
	var missing []int
	for i, text := range texts {
		hashes[i] = ComputeHash(text)
		if r.cache != nil {
			if v, ok := r.cache.Get(hashes[i]); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, i)
	}

	size := r.batch.size
	for start := 0; start < len(missing); start += size {
		if start > 0 && r.batch.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.batch.delay):
			}
		}

		end := start + size
		if end > len(missing) {
			end = len(missing)
		}
		batch := make([]string, 0, end-start)
		for _, i := range missing[start:end] {
			batch = append(batch, Truncate(texts[i], MaxTextChars))
		}

		vecs, err := retryWithBackoff(ctx, r.batch.retry, func() ([][]float32, error) {
			return call(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", ErrProviderFailed, start, end, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrProviderFailed, len(batch), len(vecs))
		}

		for j, i := range missing[start:end] {
			if r.dimension > 0 && len(vecs[j]) != r.dimension {
				return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, r.dimension, len(vecs[j]))
			}
			out[i] = vecs[j]
			if r.cache != nil {
				r.cache.Set(hashes[i], vecs[j])
			}
		}
	}

	return out, nil
}

func (r *remote) embedOne(ctx context.Context, text string, call callFunc) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	vecs, err := r.embedAll(ctx, []string{text}, call)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// JinaProvider implements Embedder using the Jina AI API
type JinaProvider struct {
	remote
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg Config, cache *Cache) (*JinaProvider, error) {
	if cfg.JinaKey == "" {
		return nil, fmt.Errorf("%w: jina api key not set", ErrNoProviderEnabled)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultJinaModel
	}
	url := cfg.BaseURL
	if url == "" {
		url = DefaultJinaURL
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = JinaDimension
	}

	return &JinaProvider{
		remote: remote{
			cache:     cache,
			batch:     cfg.batchOptions(),
			dimension: dimension,
		},
		apiKey: cfg.JinaKey,
		model:  model,
		url:    url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (j *JinaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return j.embedOne(ctx, text, j.callAPI)
}

func (j *JinaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return j.embedAll(ctx, texts, j.callAPI)
}

// callAPI makes the actual API call to Jina
func (j *JinaProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": j.model,
		"input": texts,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	sort.SliceStable(apiResp.Data, func(a, b int) bool {
		return apiResp.Data[a].Index < apiResp.Data[b].Index
	})
	vecs := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vecs[i] = data.Embedding
	}

	return vecs, nil
}

func (j *JinaProvider) Dimension() int {
	return j.dimension
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Scheme() string {
	return SchemeID(ProviderJina, j.model, j.dimension)
}

func (j *JinaProvider) Close() error {
	if j.cache != nil {
		j.cache.Clear()
	}
	return nil
}

// OpenAIProvider implements Embedder against any OpenAI-compatible API
type OpenAIProvider struct {
	remote
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI embedder. An empty BaseURL uses
// the public OpenAI endpoint; Dimension 0 uses the model's known size.
func NewOpenAIProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("%w: openai api key not set", ErrNoProviderEnabled)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = OpenAIDimension
		if d, ok := openAIDimensions[model]; ok {
			dimension = d
		}
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	return &OpenAIProvider{
		remote: remote{
			cache:     cache,
			batch:     cfg.batchOptions(),
			dimension: dimension,
		},
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return o.embedOne(ctx, text, o.callAPI)
}

func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return o.embedAll(ctx, texts, o.callAPI)
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	data := resp.Data
	sort.SliceStable(data, func(a, b int) bool {
		return data[a].Index < data[b].Index
	})
	vecs := make([][]float32, len(data))
	for i, d := range data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Scheme() string {
	return SchemeID(ProviderOpenAI, o.model, o.dimension)
}

func (o *OpenAIProvider) Close() error {
	if o.cache != nil {
		o.cache.Clear()
	}
	return nil
}
