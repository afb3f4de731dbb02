package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/pkg/types"
)

func candidate(id, name string, typ types.ChunkType, content string, score float64) Candidate {
	return Candidate{
		Chunk: types.SearchResult{
			ID:       id,
			Content:  content,
			Metadata: types.ChunkMetadata{Name: name, Type: typ, FilePath: id + ".go"},
			Score:    score,
		},
		Score: score,
	}
}

func testCandidates() []Candidate {
	return []Candidate{
		candidate("render", "renderButton", types.ChunkFunction, "function renderButton() { return '<button>' }", 0.40),
		candidate("parser", "ConfigParser", types.ChunkClass, "class ConfigParser { parse(text) {} }", 0.35),
		candidate("parse", "parseConfig", types.ChunkFunction, "function parseConfig(path) { return JSON.parse(read(path)) }", 0.30),
		candidate("load", "loadFile", types.ChunkFunction, "function loadFile(path) { return fs.readFileSync(path) }", 0.20),
	}
}

func TestRerank_NoOpLaw(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	r := New(NewClient(Config{URL: server.URL, APIKey: "k"}), nil)
	cands := testCandidates()

	for _, k := range []int{4, 10} {
		got := r.Rerank(context.Background(), "parse config", cands, k)
		assert.Equal(t, cands, got)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no-op must not call the service")
}

func TestHeuristic(t *testing.T) {
	got := Heuristic("parseConfig", testCandidates(), 2)
	require.Len(t, got, 2)
	assert.Equal(t, "parse", got[0].Chunk.ID, "exact name match wins")
	// 0.30 + exact 0.5 + full density 0.2
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestHeuristic_Bonuses(t *testing.T) {
	long := strings.Repeat("x", LongContentChars+1)

	tests := []struct {
		name  string
		query string
		cand  Candidate
		want  float64
	}{
		{"no match", "database", candidate("a", "renderButton", types.ChunkFunction, "render", 0), 0},
		{"name substring", "button", candidate("a", "renderButton", types.ChunkFunction, "x", 0), NameSubstringBonus},
		{"density half", "render widget", candidate("a", "draw", types.ChunkMethod, "render", 0), MaxDensityBonus / 2},
		{"type keyword", "which class", candidate("a", "Store", types.ChunkClass, "x", 0), TypeBonus},
		{"long penalty", "zzz", candidate("a", "Store", types.ChunkClass, long, 0), -LongContentPenalty},
		{"adds to input score", "database", candidate("a", "x", types.ChunkFunction, "x", 0.25), 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Heuristic(tt.query, []Candidate{tt.cand}, 1)
			require.Len(t, got, 1)
			assert.InDelta(t, tt.want, got[0].Score, 1e-9)
		})
	}
}

func TestRerank_Remote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "how is config loaded", req.Query)
		assert.Len(t, req.Documents, 4)
		assert.Equal(t, 2, req.TopN)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"index": 3, "relevance_score": 0.91},
				{"index": 2, "relevance_score": 0.77},
			},
		})
	}))
	defer server.Close()

	r := New(NewClient(Config{URL: server.URL, APIKey: "test-key"}), nil)
	assert.Equal(t, ModeRemote, r.Mode())

	got := r.Rerank(context.Background(), "how is config loaded", testCandidates(), 2)
	require.Len(t, got, 2)
	assert.Equal(t, "load", got[0].Chunk.ID)
	assert.Equal(t, 0.91, got[0].Score)
	assert.Equal(t, "parse", got[1].Chunk.ID)
	assert.Equal(t, ModeRemote, r.Mode())
}

func TestRerank_FirstFailureDisablesRemote(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	r := New(NewClient(Config{URL: server.URL, APIKey: "k"}), nil)
	ctx := context.Background()

	first := r.Rerank(ctx, "parseConfig", testCandidates(), 2)
	require.Len(t, first, 2)
	assert.Equal(t, "parse", first[0].Chunk.ID, "failed call falls back to heuristic")
	assert.Equal(t, ModeHeuristic, r.Mode())
	assert.False(t, r.IsReady())

	for i := 0; i < 3; i++ {
		got := r.Rerank(ctx, "parseConfig", testCandidates(), 2)
		assert.Equal(t, first, got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "remote must not be retried in the same session")
}

func TestRerank_BadIndexFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{"index": 42, "relevance_score": 0.9}},
		})
	}))
	defer server.Close()

	r := New(NewClient(Config{URL: server.URL, APIKey: "k"}), nil)
	got := r.Rerank(context.Background(), "parseConfig", testCandidates(), 1)
	require.Len(t, got, 1)
	assert.Equal(t, "parse", got[0].Chunk.ID)
	assert.Equal(t, ModeHeuristic, r.Mode())
}

func TestNewClient_NotConfigured(t *testing.T) {
	assert.Nil(t, NewClient(Config{URL: "http://example.invalid"}))

	r := New(nil, nil)
	assert.False(t, r.IsReady())
	assert.Equal(t, ModeHeuristic, r.Mode())
}
