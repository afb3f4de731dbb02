package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/pkg/types"
)

const (
	// DefaultURL is the Jina rerank endpoint; Cohere-compatible services accept the same body
	DefaultURL   = "https://api.jina.ai/v1/rerank"
	DefaultModel = "jina-reranker-v2-base-multilingual"

	// MaxDocumentChars bounds each document sent for reranking
	MaxDocumentChars = 4000
)

// Config configures the remote rerank client
type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls a Jina/Cohere style rerank API
type Client struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient returns nil when no API key is configured
func NewClient(cfg Config) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		url:    url,
		apiKey: cfg.APIKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank sends candidate texts to the service and maps the returned
// indices back onto the candidates. The service's relevance score
// replaces the candidate score.
func (c *Client) Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Candidate, error) {
	docs := make([]string, len(candidates))
	for i, cand := range candidates {
		docs[i] = embedder.Truncate(cand.Chunk.Content, MaxDocumentChars)
	}

	body, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: docs,
		TopN:      k,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: rerank request failed: %v", types.ErrServiceUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: rerank API returned status %d: %s", types.ErrServiceUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var apiResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResp.Results) == 0 {
		return nil, fmt.Errorf("%w: rerank returned no results", types.ErrServiceUnavailable)
	}

	out := make([]Candidate, 0, len(apiResp.Results))
	seen := make(map[int]bool, len(apiResp.Results))
	for _, r := range apiResp.Results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank returned index %d for %d documents", r.Index, len(candidates))
		}
		if seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		out = append(out, Candidate{Chunk: candidates[r.Index].Chunk, Score: r.RelevanceScore})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
