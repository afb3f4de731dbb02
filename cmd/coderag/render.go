package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/coderag/internal/engine"
	"github.com/dshills/coderag/internal/indexer"
	"github.com/dshills/coderag/internal/retriever"
	"github.com/dshills/coderag/pkg/types"
)

const highlightTheme = "monokai"

var (
	Red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	Green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	Yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	Gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	Bold   = lipgloss.NewStyle().Bold(true)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

// highlight colors code for the terminal, falling back to plain text
func highlight(code, language string) string {
	if language == "" {
		language = "text"
	}
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, code, language, "terminal256", highlightTheme); err != nil {
		return code
	}
	return buf.String()
}

// highlightMarkdown colors fenced code blocks in markdown text
func highlightMarkdown(text string) string {
	var out, block strings.Builder
	inBlock := false
	language := ""

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inBlock {
				out.WriteString(strings.TrimRight(highlight(block.String(), language), "\n"))
				out.WriteString("\n")
				block.Reset()
				inBlock = false
				continue
			}
			inBlock = true
			language = strings.TrimPrefix(trimmed, "```")
			continue
		}
		if inBlock {
			block.WriteString(line)
			block.WriteString("\n")
			continue
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	// unterminated fence
	if inBlock {
		out.WriteString(highlight(block.String(), language))
	}
	return strings.TrimRight(out.String(), "\n")
}

func confidenceStyle(c types.Confidence) lipgloss.Style {
	switch c {
	case types.ConfidenceHigh:
		return Green
	case types.ConfidenceMedium:
		return Yellow
	default:
		return Red
	}
}

func pathStyle(p types.SearchPath) lipgloss.Style {
	switch p {
	case types.PathVector:
		return Green
	case types.PathKeyword:
		return Yellow
	default:
		return Red
	}
}

func location(m types.ChunkMetadata) string {
	return fmt.Sprintf("%s:%d-%d", m.FilePath, m.StartLine, m.EndLine)
}

func printIndexStats(stats *indexer.Statistics) {
	lines := []string{
		Bold.Render("Indexing complete"),
		fmt.Sprintf("Chunks:        %d", stats.Chunks),
		fmt.Sprintf("Keyword docs:  %d", stats.KeywordDocs),
		fmt.Sprintf("Vector docs:   %d", stats.VectorDocs),
		fmt.Sprintf("Duration:      %s", stats.Duration.Round(time.Millisecond)),
	}
	if stats.EmbeddingScheme != "" {
		lines = append(lines, fmt.Sprintf("Embeddings:    %s", stats.EmbeddingScheme))
	}
	if stats.UsedFallback {
		lines = append(lines, Yellow.Render("Primary embedder failed; fallback embeddings were used"))
	}
	if stats.VectorError != "" {
		lines = append(lines, Yellow.Render("Vector index skipped: "+stats.VectorError))
	}
	fmt.Println(BoxStyle.Render(strings.Join(lines, "\n")))
}

func printSearch(resp retriever.Response) {
	header := fmt.Sprintf("%d results via %s in %s",
		len(resp.Results), pathStyle(resp.Path).Render(string(resp.Path)), resp.Duration.Round(time.Millisecond))
	fmt.Println(header)
	if resp.VectorError != "" {
		fmt.Println(Gray.Render("vector search: " + resp.VectorError))
	}

	for i, r := range resp.Results {
		fmt.Println()
		title := fmt.Sprintf("%d. %s (%s) %s  score %.3f",
			i+1, Bold.Render(r.Metadata.Name), r.Metadata.Type, Gray.Render(location(r.Metadata)), r.Score)
		fmt.Println(title)
		fmt.Println(highlight(headLines(r.Content, 12), r.Metadata.Language))
	}
}

func printAnswer(ans types.Answer) error {
	meta := fmt.Sprintf("confidence %s | path %s",
		confidenceStyle(ans.Confidence).Render(string(ans.Confidence)),
		pathStyle(ans.Path).Render(string(ans.Path)))
	if ans.AIGenerated {
		meta += " | generated"
	}
	fmt.Println(BoxStyle.Render(meta))
	fmt.Println()
	fmt.Println(highlightMarkdown(ans.Answer))

	if len(ans.RelevantNodes) > 0 {
		fmt.Println()
		fmt.Println(Bold.Render("Sources"))
		for _, src := range ans.RelevantNodes {
			fmt.Printf("  %s (%s) %s  %.2f\n",
				src.Name, src.Type, Gray.Render(fmt.Sprintf("%s:%d-%d", src.FilePath, src.StartLine, src.EndLine)), src.RelevanceScore)
		}
	}
	return nil
}

func printStatus(st engine.Status) {
	ready := Red.Render("no")
	if st.VectorReady {
		ready = Green.Render("yes")
	}
	lines := []string{
		Bold.Render("coderag status"),
		fmt.Sprintf("Chunks:          %d", st.Chunks),
		fmt.Sprintf("Vector docs:     %d", st.VectorDocs),
		fmt.Sprintf("Vector ready:    %s", ready),
		fmt.Sprintf("Vector backend:  %s", st.VectorBackend),
		fmt.Sprintf("Embeddings:      %s", st.EmbeddingProvider),
		fmt.Sprintf("Rerank:          %s", st.RerankMode),
		fmt.Sprintf("Answers:         %s", st.AnswerProvider),
	}
	if st.EmbeddingScheme != "" {
		lines = append(lines, fmt.Sprintf("Scheme:          %s", st.EmbeddingScheme))
	}
	if st.IndexedAt != nil {
		lines = append(lines, fmt.Sprintf("Indexed at:      %s", st.IndexedAt.Local().Format(time.RFC1123)))
	}
	if st.Indexing {
		lines = append(lines, Yellow.Render("Indexing in progress"))
	}
	fmt.Println(BoxStyle.Render(strings.Join(lines, "\n")))
}

// headLines keeps the first n lines of s
func headLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + "\n..."
}
