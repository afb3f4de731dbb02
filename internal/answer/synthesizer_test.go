package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/pkg/types"
)

// stubSearcher returns a fixed response and records the requested k
type stubSearcher struct {
	resp  retriever.Response
	lastK int
}

func (s *stubSearcher) Search(_ context.Context, _ string, k int) retriever.Response {
	s.lastK = k
	return s.resp
}

// fakeCompleter records its prompts and returns a canned reply
type fakeCompleter struct {
	reply  string
	err    error
	system string
	user   string
	calls  int
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.system, f.user = system, user
	return f.reply, f.err
}

func (f *fakeCompleter) Name() string { return "fake/test" }

func result(name string, kind types.ChunkType, file string, score float64) types.SearchResult {
	return types.SearchResult{
		ID:      types.ChunkID(file, "", name),
		Content: fmt.Sprintf("function %s(input) {\n  return input\n}", name),
		Metadata: types.ChunkMetadata{
			FilePath: file, Name: name, Type: kind, StartLine: 10, EndLine: 12,
			Language: "javascript", Signature: fmt.Sprintf("function %s(input)", name),
		},
		Score: score,
	}
}

func keywordResponse() retriever.Response {
	return retriever.Response{
		Results: []types.SearchResult{
			result("parseConfig", types.ChunkFunction, "src/config.js", 1.02),
			result("loadFile", types.ChunkFunction, "src/io.js", 0.3),
		},
		Path: types.PathKeyword,
	}
}

func TestAnswer_RuleBasedWithoutCompleter(t *testing.T) {
	searcher := &stubSearcher{resp: keywordResponse()}
	s := NewSynthesizer(searcher, nil, nil, nil)

	ans := s.Answer(context.Background(), "What does parseConfig do?")

	assert.Equal(t, RetrieveTopK, searcher.lastK)
	assert.False(t, ans.AIGenerated)
	assert.Equal(t, types.PathKeyword, ans.Path)
	assert.Equal(t, types.ConfidenceHigh, ans.Confidence)
	assert.Contains(t, ans.Answer, "**parseConfig** is a function defined in `src/config.js`")
	assert.Contains(t, ans.Answer, "loadFile")
	require.Len(t, ans.RelevantNodes, 2)
	assert.Equal(t, 1.0, ans.RelevantNodes[0].RelevanceScore)
	assert.Equal(t, 0.3, ans.RelevantNodes[1].RelevanceScore)
	for _, src := range ans.RelevantNodes {
		assert.NoError(t, src.Validate())
	}
}

func TestAnswer_NoResults(t *testing.T) {
	searcher := &stubSearcher{resp: retriever.Response{Results: []types.SearchResult{}, Path: types.PathDegraded}}
	completer := &fakeCompleter{reply: "should not be used"}
	s := NewSynthesizer(searcher, nil, completer, nil)

	ans := s.Answer(context.Background(), "where is the billing module?")

	assert.Equal(t, noResultsText, ans.Answer)
	assert.Equal(t, types.ConfidenceLow, ans.Confidence)
	assert.Equal(t, types.PathDegraded, ans.Path)
	assert.NotNil(t, ans.RelevantNodes)
	assert.Empty(t, ans.RelevantNodes)
	assert.Zero(t, completer.calls)
}

func TestAnswer_EmptyQuestion(t *testing.T) {
	searcher := &stubSearcher{resp: keywordResponse()}
	s := NewSynthesizer(searcher, nil, nil, nil)

	ans := s.Answer(context.Background(), "   ")
	assert.Equal(t, emptyQuestionText, ans.Answer)
	assert.Equal(t, types.ConfidenceLow, ans.Confidence)
	assert.Zero(t, searcher.lastK)
}

func TestAnswer_CompleterSuccess(t *testing.T) {
	searcher := &stubSearcher{resp: keywordResponse()}
	completer := &fakeCompleter{reply: "  parseConfig parses JSON text.  "}
	s := NewSynthesizer(searcher, nil, completer, nil)

	ans := s.Answer(context.Background(), "What does parseConfig do?")

	assert.True(t, ans.AIGenerated)
	assert.Equal(t, "parseConfig parses JSON text.", ans.Answer)
	assert.Equal(t, systemPrompt, completer.system)
	assert.Contains(t, completer.user, "Question: What does parseConfig do?")
	assert.Contains(t, completer.user, "[1] parseConfig (function) in src/config.js:10-12")
	assert.Contains(t, completer.user, "Summary: function parseConfig(input)")
	assert.Equal(t, "fake/test", s.CompleterName())
	assert.True(t, s.IsReady())
}

func TestAnswer_ContextLimitedToTopFive(t *testing.T) {
	var results []types.SearchResult
	for i := 0; i < RetrieveTopK; i++ {
		results = append(results, result(fmt.Sprintf("handler%d", i), types.ChunkFunction, "src/handlers.js", 0.9-float64(i)*0.1))
	}
	searcher := &stubSearcher{resp: retriever.Response{Results: results, Path: types.PathVector}}
	completer := &fakeCompleter{reply: "ok"}
	s := NewSynthesizer(searcher, nil, completer, nil)

	ans := s.Answer(context.Background(), "list the handlers")

	require.Len(t, ans.RelevantNodes, ContextTopK)
	assert.Contains(t, completer.user, "[5] ")
	assert.NotContains(t, completer.user, "[6] ")
	for _, src := range ans.RelevantNodes {
		assert.GreaterOrEqual(t, src.RelevanceScore, 0.0)
		assert.LessOrEqual(t, src.RelevanceScore, 1.0)
	}
	assert.Equal(t, types.PathVector, ans.Path)
}

func TestAnswer_CompleterFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		reply      string
		wantNotice string
	}{
		{"auth failure", errors.New("chat completion: status 401: invalid api key"), "", authNotice},
		{"sentinel auth", fmt.Errorf("wrapped: %w", types.ErrAuthentication), "", authNotice},
		{"service down", fmt.Errorf("%w: connection refused", types.ErrServiceUnavailable), "", degradedNotice},
		{"empty completion", nil, "   ", degradedNotice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &stubSearcher{resp: keywordResponse()}
			s := NewSynthesizer(searcher, nil, &fakeCompleter{reply: tt.reply, err: tt.err}, nil)

			ans := s.Answer(context.Background(), "where is parseConfig defined?")

			assert.False(t, ans.AIGenerated)
			assert.True(t, strings.HasPrefix(ans.Answer, tt.wantNotice), ans.Answer)
			assert.Contains(t, ans.Answer, "**parseConfig** is defined in `src/config.js` (lines 10-12).")
			assert.Len(t, ans.RelevantNodes, 2)
		})
	}
}

func TestAnswer_OpenAIUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer server.Close()

	completer, err := NewCompleter(Config{Provider: ProviderOpenAI, APIKey: "bad-key", BaseURL: server.URL})
	require.NoError(t, err)

	s := NewSynthesizer(&stubSearcher{resp: keywordResponse()}, nil, completer, nil)
	ans := s.Answer(context.Background(), "What does parseConfig do?")

	assert.False(t, ans.AIGenerated)
	assert.True(t, strings.HasPrefix(ans.Answer, authNotice))
}

type panickySearcher struct{}

func (panickySearcher) Search(context.Context, string, int) retriever.Response {
	panic("index corrupted")
}

func TestAnswer_PanicContained(t *testing.T) {
	s := NewSynthesizer(panickySearcher{}, nil, nil, nil)

	var ans types.Answer
	require.NotPanics(t, func() {
		ans = s.Answer(context.Background(), "what is parseConfig")
	})
	assert.Equal(t, types.ConfidenceLow, ans.Confidence)
	assert.Equal(t, types.PathDegraded, ans.Path)
}
