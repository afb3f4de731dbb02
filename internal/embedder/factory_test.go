package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/pkg/types"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"auto with no keys is keyword only", Config{Provider: "auto"}, ProviderNone},
		{"empty provider behaves like auto", Config{}, ProviderNone},
		{"openai key wins", Config{OpenAIKey: "sk", JinaKey: "jk"}, ProviderOpenAI},
		{"jina key", Config{JinaKey: "jk"}, ProviderJina},
		{"explicit local", Config{Provider: "local", OpenAIKey: "sk"}, ProviderLocal},
		{"explicit is case-insensitive", Config{Provider: " Jina "}, ProviderJina},
		{"explicit none", Config{Provider: "none", OpenAIKey: "sk"}, ProviderNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.cfg))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderLocal})
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
	})

	t.Run("openai", func(t *testing.T) {
		emb, err := New(Config{OpenAIKey: "sk-test", CacheSize: 10})
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, emb.Provider())
		assert.Equal(t, "openai/text-embedding-3-small/1536", emb.Scheme())
	})

	t.Run("openai large model dimension", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderOpenAI, OpenAIKey: "sk-test", Model: "text-embedding-3-large"})
		require.NoError(t, err)
		assert.Equal(t, 3072, emb.Dimension())
	})

	t.Run("jina", func(t *testing.T) {
		emb, err := New(Config{Provider: ProviderJina, JinaKey: "jk"})
		require.NoError(t, err)
		assert.Equal(t, JinaDimension, emb.Dimension())
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := New(Config{Provider: ProviderJina})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
		assert.ErrorIs(t, err, types.ErrNotConfigured)
	})

	t.Run("nothing configured", func(t *testing.T) {
		emb, err := New(Config{})
		assert.Nil(t, emb)
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "word2vec"})
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})
}
