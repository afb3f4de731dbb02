package keyword

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/coderag/pkg/types"
)

// SaveSource writes the keyword source file: [{id, content, metadata}].
// The write goes to a temp file first so readers never see a partial file.
func (idx *Index) SaveSource(path string) error {
	data, err := json.Marshal(idx.Chunks())
	if err != nil {
		return fmt.Errorf("marshal keyword source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create keyword source dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write keyword source: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadSource rebuilds an index from a keyword source file.
// A missing file yields an empty index; a malformed file is an error.
func LoadSource(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keyword source: %w", err)
	}

	var chunks []types.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse keyword source: %w", err)
	}

	return Build(chunks), nil
}
