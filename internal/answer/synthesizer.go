package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/reranker"
	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/pkg/types"
)

// Retrieval sizes
const (
	RetrieveTopK = 8
	ContextTopK  = 5

	// SourceSnippetChars bounds the snippet returned with each source
	SourceSnippetChars = 500
)

// Notices prepended to a rule-based answer when the completer fails
const (
	authNotice = "Note: the answer service rejected its credentials. " +
		"Check the configured LLM API key (CODERAG_LLM_API_KEY) and its permissions. " +
		"Showing an answer built directly from the retrieved code."
	degradedNotice = "Note: the answer service is unavailable right now. " +
		"Showing an answer built directly from the retrieved code."
	emptyQuestionText = "Please ask a question about the codebase."
)

var errEmptyCompletion = errors.New("completion was empty")

// Searcher is the retrieval dependency of the Synthesizer
type Searcher interface {
	Search(ctx context.Context, query string, k int) retriever.Response
}

// Synthesizer turns a question into an Answer. It never returns an error:
// without a completer, or when the completer fails, it answers from
// templates over the retrieved code.
type Synthesizer struct {
	searcher  Searcher
	reranker  *reranker.Reranker
	completer Completer
	logger    *slog.Logger
}

// NewSynthesizer creates a synthesizer. completer may be nil; a nil
// reranker means heuristic reranking.
func NewSynthesizer(searcher Searcher, rr *reranker.Reranker, completer Completer, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if rr == nil {
		rr = reranker.New(nil, logger)
	}
	return &Synthesizer{
		searcher:  searcher,
		reranker:  rr,
		completer: completer,
		logger:    logger.With("component", "answer"),
	}
}

// IsReady reports whether answers can be generated by a language model
func (s *Synthesizer) IsReady() bool {
	return s.completer != nil
}

// CompleterName names the configured completer, or "none"
func (s *Synthesizer) CompleterName() string {
	if s.completer == nil {
		return ProviderNone
	}
	return s.completer.Name()
}

// Answer retrieves, reranks and answers the question
func (s *Synthesizer) Answer(ctx context.Context, question string) (ans types.Answer) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("answer panicked", "panic", r)
			ans = types.Answer{
				Answer:        noResultsText,
				RelevantNodes: []types.RAGSource{},
				Confidence:    types.ConfidenceLow,
				Path:          types.PathDegraded,
			}
		}
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return types.Answer{
			Answer:        emptyQuestionText,
			RelevantNodes: []types.RAGSource{},
			Confidence:    types.ConfidenceLow,
			Path:          types.PathDegraded,
		}
	}

	resp := s.searcher.Search(ctx, question, RetrieveTopK)
	if len(resp.Results) == 0 {
		return types.Answer{
			Answer:        noResultsText,
			RelevantNodes: []types.RAGSource{},
			Confidence:    types.ConfidenceLow,
			Path:          resp.Path,
		}
	}

	cands := s.reranker.Rerank(ctx, question, reranker.FromResults(resp.Results), ContextTopK)
	if len(cands) > ContextTopK {
		cands = cands[:ContextTopK]
	}

	ans = types.Answer{
		RelevantNodes: toSources(cands),
		Confidence:    types.ConfidenceFor(cands[0].Score),
		Path:          resp.Path,
	}

	if s.completer == nil {
		ans.Answer = ruleBased(question, cands)
		return ans
	}

	text, err := s.complete(ctx, question, cands)
	if err != nil {
		notice := degradedNotice
		if IsAuthError(err) {
			notice = authNotice
			s.logger.Warn("answer service rejected credentials, using rule-based answer", "completer", s.completer.Name(), "error", err)
		} else {
			s.logger.Warn("answer service failed, using rule-based answer", "completer", s.completer.Name(), "error", err)
		}
		ans.Answer = notice + "\n\n" + ruleBased(question, cands)
		return ans
	}

	ans.Answer = text
	ans.AIGenerated = true
	return ans
}

func (s *Synthesizer) complete(ctx context.Context, question string, cands []reranker.Candidate) (string, error) {
	text, err := s.completer.Complete(ctx, systemPrompt, buildUserPrompt(question, cands))
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.completer.Name(), err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

// toSources converts ranked candidates to caller-facing sources
func toSources(cands []reranker.Candidate) []types.RAGSource {
	out := make([]types.RAGSource, len(cands))
	for i, c := range cands {
		meta := c.Chunk.Metadata
		out[i] = types.RAGSource{
			FilePath:       meta.FilePath,
			StartLine:      meta.StartLine,
			EndLine:        meta.EndLine,
			Snippet:        embedder.Truncate(c.Chunk.Content, SourceSnippetChars),
			RelevanceScore: types.ClampRelevance(c.Score),
			Name:           meta.Name,
			Type:           meta.Type,
		}
	}
	return out
}
