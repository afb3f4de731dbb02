package answer

import (
	"fmt"
	"strings"

	"github.com/dshills/coderag/internal/embedder"
	"github.com/dshills/coderag/internal/reranker"
	"github.com/dshills/coderag/pkg/types"
)

// MaxSnippetChars bounds each code snippet placed in the prompt
const MaxSnippetChars = 1500

const systemPrompt = `You answer questions about a codebase using only the code context provided.
Rules:
- Use only the code elements in the context. Do not invent functions, files or behavior.
- If the context does not answer the question, say that it does not.
- Refer to code by name and file path, for example parseConfig in src/config.js.
- Keep the answer short and concrete. Use code blocks for code.`

// buildUserPrompt renders the question and the ranked context
func buildUserPrompt(question string, cands []reranker.Candidate) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nCode context:\n")

	for i, c := range cands {
		meta := c.Chunk.Metadata
		fmt.Fprintf(&sb, "\n[%d] %s (%s) in %s:%d-%d\n", i+1, meta.Name, meta.Type, meta.FilePath, meta.StartLine, meta.EndLine)
		if s := summary(c.Chunk); s != "" {
			fmt.Fprintf(&sb, "Summary: %s\n", s)
		}
		fmt.Fprintf(&sb, "```%s\n%s\n```\n", meta.Language, embedder.Truncate(c.Chunk.Content, MaxSnippetChars))
	}

	sb.WriteString("\nAnswer the question using the context above.")
	return sb.String()
}

// summary is the first docstring line, else the signature
func summary(r types.SearchResult) string {
	if doc := firstLine(r.Metadata.Docstring); doc != "" {
		return doc
	}
	return strings.TrimSpace(r.Metadata.Signature)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
