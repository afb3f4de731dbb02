package reranker

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/dshills/coderag/internal/keyword"
	"github.com/dshills/coderag/pkg/types"
)

// Modes reported by Reranker.Mode
const (
	ModeRemote    = "remote"
	ModeHeuristic = "heuristic"
)

// Heuristic bonuses added to the incoming similarity score
const (
	ExactNameBonus     = 0.5
	NameSubstringBonus = 0.3
	MaxDensityBonus    = 0.2
	TypeBonus          = 0.2
	LongContentPenalty = 0.1

	// LongContentChars is the content length above which the penalty applies
	LongContentChars = 2000
)

// typeKeywords maps a chunk type to query words that refer to it
var typeKeywords = map[types.ChunkType][]string{
	types.ChunkFunction:  {"function", "functions", "func", "def"},
	types.ChunkMethod:    {"method", "methods"},
	types.ChunkClass:     {"class", "classes", "struct", "structs", "type", "types"},
	types.ChunkComponent: {"component", "components", "widget"},
	types.ChunkInterface: {"interface", "interfaces", "trait", "protocol"},
}

// Candidate is a search result with its current score
type Candidate struct {
	Chunk types.SearchResult
	Score float64
}

// FromResults wraps search results as candidates, keeping their scores
func FromResults(results []types.SearchResult) []Candidate {
	out := make([]Candidate, len(results))
	for i, r := range results {
		out[i] = Candidate{Chunk: r, Score: r.Score}
	}
	return out
}

// Reranker reorders candidates with a remote service when one is
// configured, falling back to a local heuristic. The first remote failure
// disables the remote path for the life of the Reranker.
type Reranker struct {
	remote   *Client
	disabled atomic.Bool
	logger   *slog.Logger
}

// New creates a reranker. A nil client means heuristic only.
func New(client *Client, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{
		remote: client,
		logger: logger.With("component", "reranker"),
	}
}

// Mode reports which path the next Rerank call will take
func (r *Reranker) Mode() string {
	if r.IsReady() {
		return ModeRemote
	}
	return ModeHeuristic
}

// IsReady reports whether the remote service is configured and enabled
func (r *Reranker) IsReady() bool {
	return r.remote != nil && !r.disabled.Load()
}

// Rerank returns the best k candidates. When there are k or fewer
// candidates they are returned unchanged and in the same order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, k int) []Candidate {
	if len(candidates) <= k {
		return candidates
	}

	if r.IsReady() {
		ranked, err := r.remote.Rerank(ctx, query, candidates, k)
		if err == nil {
			return ranked
		}
		if r.disabled.CompareAndSwap(false, true) {
			r.logger.Warn("remote rerank failed, using heuristic for the rest of the session", "error", err)
		}
	}

	return Heuristic(query, candidates, k)
}

// Heuristic scores candidates by name matches, keyword density, construct
// type and length, then returns the top k
func Heuristic(query string, candidates []Candidate, k int) []Candidate {
	if k <= 0 {
		return []Candidate{}
	}

	tokens := uniqueTokens(query)
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = Candidate{Chunk: c.Chunk, Score: c.Score + bonus(tokens, c.Chunk)}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})

	if len(out) > k {
		out = out[:k]
	}
	return out
}

func bonus(tokens []string, chunk types.SearchResult) float64 {
	var score float64
	name := strings.ToLower(chunk.Metadata.Name)
	content := strings.ToLower(chunk.Content)

	if name != "" {
		exact, partial := false, false
		for _, tok := range tokens {
			if tok == name {
				exact = true
				break
			}
			if strings.Contains(name, tok) {
				partial = true
			}
		}
		switch {
		case exact:
			score += ExactNameBonus
		case partial:
			score += NameSubstringBonus
		}
	}

	if len(tokens) > 0 {
		present := 0
		for _, tok := range tokens {
			if strings.Contains(content, tok) {
				present++
			}
		}
		score += MaxDensityBonus * float64(present) / float64(len(tokens))
	}

	if mentionsType(tokens, chunk.Metadata.Type) {
		score += TypeBonus
	}

	if len(chunk.Content) > LongContentChars {
		score -= LongContentPenalty
	}

	return score
}

func mentionsType(tokens []string, t types.ChunkType) bool {
	for _, word := range typeKeywords[t] {
		for _, tok := range tokens {
			if tok == word {
				return true
			}
		}
	}
	return false
}

func uniqueTokens(query string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range keyword.Tokenize(query) {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
