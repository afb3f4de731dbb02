package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/coderag/internal/reranker"
	"github.com/dshills/coderag/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		question string
		want     questionKind
	}{
		{"List the HTTP handlers", kindList},
		{"show me all parsers", kindList},
		{"Where is parseConfig defined?", kindWhere},
		{"How does loadFile work?", kindHow},
		{"What is ConfigParser?", kindWhat},
		{"explain the tokenizer", kindWhat},
		{"showcase components", kindWhat},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.question))
		})
	}
}

func TestRuleBased_Templates(t *testing.T) {
	cands := reranker.FromResults([]types.SearchResult{
		result("parseConfig", types.ChunkFunction, "src/config.js", 0.8),
		result("ConfigParser", types.ChunkClass, "src/parser.js", 0.5),
	})
	cands[0].Chunk.Metadata.Docstring = "Parses a JSON config.\nReturns an object."

	t.Run("list", func(t *testing.T) {
		got := ruleBased("list config code", cands)
		assert.Contains(t, got, "Found 2 relevant code elements:")
		assert.Contains(t, got, "1. **parseConfig** (function) - src/config.js:10-12")
		assert.Contains(t, got, "   Parses a JSON config.")
		assert.Contains(t, got, "2. **ConfigParser** (class) - src/parser.js:10-12")
	})

	t.Run("where", func(t *testing.T) {
		got := ruleBased("where is config parsed", cands)
		assert.Contains(t, got, "**parseConfig** is defined in `src/config.js` (lines 10-12).")
		assert.Contains(t, got, "Related locations:\n- ConfigParser (class) in src/parser.js:10-12")
	})

	t.Run("how", func(t *testing.T) {
		got := ruleBased("how is config parsed", cands)
		assert.Contains(t, got, "**parseConfig** (function in `src/config.js`) works as follows:")
		assert.Contains(t, got, "Returns an object.")
		assert.Contains(t, got, "```javascript\nfunction parseConfig(input) {")
		assert.Contains(t, got, "It works together with:")
	})

	t.Run("what", func(t *testing.T) {
		got := ruleBased("what is parseConfig", cands)
		assert.Contains(t, got, "**parseConfig** is a function defined in `src/config.js` (lines 10-12).")
		assert.Contains(t, got, "Signature: `function parseConfig(input)`")
		assert.Contains(t, got, "Other relevant code:")
	})

	t.Run("no candidates", func(t *testing.T) {
		assert.Equal(t, noResultsText, ruleBased("what is parseConfig", nil))
	})
}

func TestHeadLines(t *testing.T) {
	assert.Equal(t, "a\nb", headLines("a\nb\n", 3))
	assert.Equal(t, "a\nb\n...", headLines("a\nb\nc\nd", 2))
}
