package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Node types produced by code-graph analyzers
const (
	TypeFile      = "file"
	TypeModule    = "module"
	TypeFunction  = "function"
	TypeMethod    = "method"
	TypeClass     = "class"
	TypeComponent = "component"
	TypeInterface = "interface"
)

// ErrInvalidGraph is returned when a graph file cannot be used
var ErrInvalidGraph = errors.New("invalid code graph")

// Node is one symbol or file in the code graph
type Node struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Type          string `json:"type"`
	Language      string `json:"language"`
	FilePath      string `json:"filePath"`
	StartLine     int    `json:"startLine"`
	EndLine       int    `json:"endLine"`
	ParentID      string `json:"parentId,omitempty"`
	SourceCode    string `json:"sourceCode"`
	Documentation string `json:"documentation,omitempty"`
}

// Edge is carried through from analyzers but not used for retrieval
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Graph is the analyzer output consumed by the chunker
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges,omitempty"`

	byID     map[string]int
	children map[string][]int
}

// New builds a graph from nodes
func New(nodes []Node) *Graph {
	g := &Graph{Nodes: nodes}
	g.buildIndex()
	return g
}

func (g *Graph) buildIndex() {
	g.byID = make(map[string]int, len(g.Nodes))
	g.children = make(map[string][]int)
	for i := range g.Nodes {
		n := &g.Nodes[i]
		g.byID[n.ID] = i
		if n.ParentID != "" {
			g.children[n.ParentID] = append(g.children[n.ParentID], i)
		}
	}
}

// Node returns the node with the given ID
func (g *Graph) Node(id string) (*Node, bool) {
	if g.byID == nil {
		g.buildIndex()
	}
	i, ok := g.byID[id]
	if !ok {
		return nil, false
	}
	return &g.Nodes[i], true
}

// Children returns the direct children of a node in graph order
func (g *Graph) Children(id string) []*Node {
	if g.children == nil {
		g.buildIndex()
	}
	idx := g.children[id]
	out := make([]*Node, 0, len(idx))
	for _, i := range idx {
		out = append(out, &g.Nodes[i])
	}
	return out
}

// IsSymbol reports whether the node is a code symbol rather than a container
func (n *Node) IsSymbol() bool {
	return n.Type != TypeFile && n.Type != TypeModule && n.Type != ""
}

// LoadFile reads a JSON graph file: {"nodes": [...], "edges": [...]}
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}

	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}

	for i, n := range g.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node %d has no id", ErrInvalidGraph, i)
		}
	}

	g.buildIndex()
	return &g, nil
}
