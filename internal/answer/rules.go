package answer

import (
	"fmt"
	"strings"

	"github.com/dshills/coderag/internal/reranker"
	"github.com/dshills/coderag/pkg/types"
)

type questionKind int

const (
	kindWhat questionKind = iota
	kindList
	kindWhere
	kindHow
)

// howSnippetLines bounds the code excerpt in a "how" answer
const howSnippetLines = 15

const noResultsText = "I couldn't find any code relevant to that question. " +
	"Try naming a function, class or file, or re-index the codebase."

// classify picks the answer template from the question's keywords
func classify(question string) questionKind {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	has := func(targets ...string) bool {
		for _, w := range words {
			for _, t := range targets {
				if w == t {
					return true
				}
			}
		}
		return false
	}

	switch {
	case has("list", "all", "show"):
		return kindList
	case has("where"):
		return kindWhere
	case has("how"):
		return kindHow
	default:
		return kindWhat
	}
}

// ruleBased answers from the ranked candidates without a language model
func ruleBased(question string, cands []reranker.Candidate) string {
	if len(cands) == 0 {
		return noResultsText
	}

	switch classify(question) {
	case kindList:
		return listAnswer(cands)
	case kindWhere:
		return whereAnswer(cands)
	case kindHow:
		return howAnswer(cands)
	default:
		return whatAnswer(cands)
	}
}

func listAnswer(cands []reranker.Candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d relevant code elements:\n", len(cands))
	for i, c := range cands {
		meta := c.Chunk.Metadata
		fmt.Fprintf(&sb, "\n%d. **%s** (%s) - %s\n", i+1, meta.Name, meta.Type, location(meta))
		if s := summary(c.Chunk); s != "" {
			fmt.Fprintf(&sb, "   %s\n", s)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func whereAnswer(cands []reranker.Candidate) string {
	top := cands[0].Chunk.Metadata

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** is defined in `%s` (lines %d-%d).", top.Name, top.FilePath, top.StartLine, top.EndLine)
	if top.ParentName != "" {
		fmt.Fprintf(&sb, " It belongs to %s.", top.ParentName)
	}
	if len(cands) > 1 {
		sb.WriteString("\n\nRelated locations:")
		for _, c := range cands[1:] {
			meta := c.Chunk.Metadata
			fmt.Fprintf(&sb, "\n- %s (%s) in %s", meta.Name, meta.Type, location(meta))
		}
	}
	return sb.String()
}

func howAnswer(cands []reranker.Candidate) string {
	top := cands[0].Chunk
	meta := top.Metadata

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** (%s in `%s`) works as follows:\n", meta.Name, meta.Type, meta.FilePath)
	if doc := strings.TrimSpace(meta.Docstring); doc != "" {
		fmt.Fprintf(&sb, "\n%s\n", doc)
	}
	fmt.Fprintf(&sb, "\n```%s\n%s\n```", meta.Language, headLines(top.Content, howSnippetLines))

	if len(cands) > 1 {
		sb.WriteString("\n\nIt works together with:")
		for _, c := range cands[1:] {
			m := c.Chunk.Metadata
			fmt.Fprintf(&sb, "\n- **%s** (%s) in %s", m.Name, m.Type, location(m))
		}
	}
	return sb.String()
}

func whatAnswer(cands []reranker.Candidate) string {
	top := cands[0].Chunk
	meta := top.Metadata

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** is a %s defined in `%s` (lines %d-%d).", meta.Name, meta.Type, meta.FilePath, meta.StartLine, meta.EndLine)
	if doc := strings.TrimSpace(meta.Docstring); doc != "" {
		fmt.Fprintf(&sb, "\n\n%s", doc)
	}
	if sig := strings.TrimSpace(meta.Signature); sig != "" {
		fmt.Fprintf(&sb, "\n\nSignature: `%s`", sig)
	}

	if len(cands) > 1 {
		sb.WriteString("\n\nOther relevant code:")
		for _, c := range cands[1:] {
			m := c.Chunk.Metadata
			fmt.Fprintf(&sb, "\n- %s (%s) in %s", m.Name, m.Type, location(m))
		}
	}
	return sb.String()
}

func location(meta types.ChunkMetadata) string {
	return fmt.Sprintf("%s:%d-%d", meta.FilePath, meta.StartLine, meta.EndLine)
}

func headLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + "\n..."
}
