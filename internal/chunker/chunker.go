package chunker

import (
	"fmt"
	"strings"

	"github.com/dshills/coderag/internal/graph"
	"github.com/dshills/coderag/pkg/types"
)

const (
	// MinSourceLength is the shortest trimmed source that produces a chunk
	MinSourceLength = 10

	// SignatureScanLines is how many leading source lines signature extraction inspects
	SignatureScanLines = 5
)

// Chunker creates retrievable chunks from a code graph
type Chunker struct{}

// New creates a new Chunker instance
func New() *Chunker {
	return &Chunker{}
}

// Chunk turns every chunkable symbol in the graph into a chunk.
// It is a pure function of the graph: the same graph always yields the same chunks.
func (c *Chunker) Chunk(g *graph.Graph) []types.Chunk {
	if g == nil {
		return nil
	}

	chunks := make([]types.Chunk, 0, len(g.Nodes))
	seen := make(map[string]int)

	for i := range g.Nodes {
		node := &g.Nodes[i]
		if !types.IsChunkable(node.Type) {
			continue
		}
		if len(strings.TrimSpace(node.SourceCode)) < MinSourceLength {
			continue
		}

		chunk := c.createChunkForNode(g, node)

		key := chunk.Metadata.FilePath + "\x00" + chunk.Metadata.ParentName + "\x00" + chunk.Metadata.Name
		seen[key]++
		chunk.ID = types.DisambiguatedChunkID(chunk.Metadata.FilePath, chunk.Metadata.ParentName, chunk.Metadata.Name, seen[key])

		chunks = append(chunks, chunk)
	}

	return chunks
}

// createChunkForNode assembles content and metadata for one symbol
func (c *Chunker) createChunkForNode(g *graph.Graph, node *graph.Node) types.Chunk {
	parentName := ""
	if node.ParentID != "" {
		if parent, ok := g.Node(node.ParentID); ok && parent.IsSymbol() {
			parentName = parent.Label
		}
	}

	doc := strings.TrimSpace(node.Documentation)
	meta := types.ChunkMetadata{
		FilePath:   node.FilePath,
		StartLine:  node.StartLine,
		EndLine:    node.EndLine,
		Type:       types.ChunkType(node.Type),
		Name:       node.Label,
		Language:   node.Language,
		ParentName: parentName,
		Docstring:  doc,
		Signature:  ExtractSignature(node.SourceCode, node.Language),
	}

	var content strings.Builder
	if doc != "" {
		content.WriteString(commentBlock(doc, node.Language))
		content.WriteString("\n")
	}
	content.WriteString(strings.TrimRight(node.SourceCode, "\n"))

	if node.Type == graph.TypeClass {
		if roster := c.methodRoster(g, node); roster != "" {
			content.WriteString("\n\n")
			content.WriteString(roster)
		}
	}

	return types.Chunk{
		Content:  content.String(),
		Metadata: meta,
	}
}

// methodRoster lists child method signatures, one line each, so class
// chunks stay dense without repeating method bodies that are chunked separately
func (c *Chunker) methodRoster(g *graph.Graph, class *graph.Node) string {
	prefix := commentPrefix(class.Language)

	var lines []string
	for _, child := range g.Children(class.ID) {
		if child.Type != graph.TypeMethod && child.Type != graph.TypeFunction {
			continue
		}
		sig := ExtractSignature(child.SourceCode, child.Language)
		if sig == "" {
			sig = child.Label
		}
		line := fmt.Sprintf("%s   %s", prefix, sig)
		if doc := firstLine(child.Documentation); doc != "" {
			line += " - " + doc
		}
		lines = append(lines, line)
	}

	if len(lines) == 0 {
		return ""
	}
	return prefix + " Methods:\n" + strings.Join(lines, "\n")
}

// commentBlock renders documentation as a comment in the node's language
func commentBlock(doc, language string) string {
	prefix := commentPrefix(language)
	lines := strings.Split(doc, "\n")
	for i, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			lines[i] = prefix
			continue
		}
		lines[i] = prefix + " " + l
	}
	return strings.Join(lines, "\n")
}

func commentPrefix(language string) string {
	switch strings.ToLower(language) {
	case "python", "ruby", "shell", "bash", "perl", "r", "yaml", "toml":
		return "#"
	default:
		return "//"
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
