package embedder

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "empty string",
			text: "",
			want: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name: "simple text",
			text: "hello world",
			want: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeHash(tt.text))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "héé", Truncate("hééllo", 3), "truncation counts runes")
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestValidateBatch(t *testing.T) {
	assert.NoError(t, ValidateBatch([]string{"a", "b"}))
	assert.ErrorIs(t, ValidateBatch(nil), ErrInvalidInput)
	assert.ErrorIs(t, ValidateBatch([]string{"a", ""}), ErrInvalidInput)
}

func TestCache(t *testing.T) {
	cache := NewCache(2)

	cache.Set("a", []float32{1, 2})
	cache.Set("b", []float32{3, 4})

	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got)

	got[0] = 99
	again, _ := cache.Get("a")
	assert.Equal(t, float32(1), again[0], "Get must return a copy")

	// "b" is now least recently used
	cache.Set("c", []float32{5, 6})
	_, ok = cache.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, cache.Size())

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestLocalProvider_Deterministic(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	text := "func parseConfig(path string) (*Config, error) { return load(path) }"
	a, err := p.Embed(ctx, text)
	require.NoError(t, err)
	b, err := NewLocalProvider().Embed(ctx, text)
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical input must give bit-identical vectors")
	assert.Len(t, a, LocalDimension)
}

func TestLocalProvider_Normalized(t *testing.T) {
	vec, err := NewLocalProvider().Embed(context.Background(), "authenticate user token session")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestLocalProvider_EmbedsWholeText(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	prefix := strings.Repeat("x ", MaxTextChars)
	short, err := p.Embed(ctx, prefix)
	require.NoError(t, err)
	long, err := p.Embed(ctx, prefix+"authenticate session")
	require.NoError(t, err)

	assert.NotEqual(t, short, long, "tokens past the remote truncation limit still count")
}

func TestLocalProvider_NoTokens(t *testing.T) {
	vec, err := NewLocalProvider().Embed(context.Background(), "a b ( ) ;")
	require.NoError(t, err)
	require.Len(t, vec, LocalDimension)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestLocalProvider_Batch(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	texts := []string{"parse config file", "open database connection", "parse config file"}
	vecs, err := p.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])

	single, err := p.Embed(ctx, texts[1])
	require.NoError(t, err)
	assert.Equal(t, single, vecs[1], "batch order must match input order")
}

func TestLocalProvider_SimilarTextScoresHigher(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	query, _ := p.Embed(ctx, "parse config")
	related, _ := p.Embed(ctx, "function parseConfig reads the config file and parse options")
	unrelated, _ := p.Embed(ctx, "render button component with onclick handler")

	assert.Greater(t, dot(query, related), dot(query, unrelated))
}

func TestLocalProvider_Metadata(t *testing.T) {
	p := NewLocalProvider()
	assert.Equal(t, ProviderLocal, p.Provider())
	assert.Equal(t, LocalModel, p.Model())
	assert.Equal(t, "local/feature-hash-v1/256", p.Scheme())
	assert.NoError(t, p.Close())
}

func TestLocalProvider_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalProvider().EmbedBatch(ctx, []string{strings.Repeat("word ", 10)})
	assert.ErrorIs(t, err, context.Canceled)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
