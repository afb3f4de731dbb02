package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ChunkType represents the kind of code symbol a chunk was built from
type ChunkType string

const (
	ChunkFunction  ChunkType = "function"
	ChunkMethod    ChunkType = "method"
	ChunkClass     ChunkType = "class"
	ChunkComponent ChunkType = "component"
	ChunkInterface ChunkType = "interface"
)

// ChunkableTypes lists the symbol kinds that produce chunks
var ChunkableTypes = []ChunkType{ChunkFunction, ChunkMethod, ChunkClass, ChunkComponent, ChunkInterface}

// IsChunkable reports whether a node type produces a chunk
func IsChunkable(kind string) bool {
	for _, t := range ChunkableTypes {
		if string(t) == kind {
			return true
		}
	}
	return false
}

// ChunkMetadata describes where a chunk came from
type ChunkMetadata struct {
	FilePath   string    `json:"filePath"`
	StartLine  int       `json:"startLine"`
	EndLine    int       `json:"endLine"`
	Type       ChunkType `json:"type"`
	Name       string    `json:"name"`
	Language   string    `json:"language"`
	ParentName string    `json:"parentName,omitempty"`
	Docstring  string    `json:"docstring,omitempty"`
	Signature  string    `json:"signature,omitempty"`
}

// Chunk is a retrievable unit of text representing one code symbol
type Chunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkID derives the stable identifier for a symbol.
// The same (filePath, parentName, name) always yields the same ID.
func ChunkID(filePath, parentName, name string) string {
	h := sha256.Sum256([]byte(filePath + "\x00" + parentName + "\x00" + name))
	return "chunk_" + hex.EncodeToString(h[:16])
}

// DisambiguatedChunkID returns the ID for the n-th (1-based) symbol sharing
// the same identity triple within one pass. n == 1 yields ChunkID.
func DisambiguatedChunkID(filePath, parentName, name string, n int) string {
	id := ChunkID(filePath, parentName, name)
	if n <= 1 {
		return id
	}
	return fmt.Sprintf("%s_%d", id, n)
}

// ValidateChunkType checks if the chunk type is valid
func (c *Chunk) ValidateChunkType() error {
	if IsChunkable(string(c.Metadata.Type)) {
		return nil
	}
	return errors.New("invalid chunk type")
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return ErrInvalidChunkID
	}
	if c.Content == "" {
		return ErrEmptyContent
	}
	if err := c.ValidateChunkType(); err != nil {
		return err
	}
	if c.Metadata.StartLine < 0 || c.Metadata.EndLine < c.Metadata.StartLine {
		return errors.New("start line must be before or equal to end line")
	}
	return nil
}

// IndexText is the text the keyword index tokenizes for this chunk
func (c *Chunk) IndexText() string {
	return c.Content + " " + c.Metadata.Name
}
