package embedder

import (
	"context"
	"math"
	"sort"

	"github.com/zeebo/xxh3"

	"github.com/dshills/coderag/internal/keyword"
)

// LocalProvider embeds text by feature hashing: each token is hashed into
// one of LocalDimension buckets and weighted by tf × ln(len+1). It needs no
// network and gives bit-identical output for identical input.
type LocalProvider struct{}

// NewLocalProvider creates a local embedder
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return hashVector(text), nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = hashVector(text)
	}
	return out, nil
}

// hashVector hashes every token of text; only remote providers truncate
func hashVector(text string) []float32 {
	tf := make(map[string]int)
	for _, tok := range keyword.Tokenize(text) {
		tf[tok]++
	}

	terms := make([]string, 0, len(tf))
	for term := range tf {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	acc := make([]float64, LocalDimension)
	for _, term := range terms {
		bucket := xxh3.HashString(term) % LocalDimension
		acc[bucket] += float64(tf[term]) * math.Log(float64(len([]rune(term)))+1)
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, LocalDimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return LocalModel
}

func (l *LocalProvider) Scheme() string {
	return SchemeID(ProviderLocal, LocalModel, LocalDimension)
}

func (l *LocalProvider) Close() error {
	return nil
}
