package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "graph.json")

	content := `{
  "nodes": [
    {"id": "f1", "label": "config.ts", "type": "file", "language": "typescript", "filePath": "src/config.ts"},
    {"id": "c1", "label": "ConfigParser", "type": "class", "language": "typescript", "filePath": "src/config.ts", "parentId": "f1", "startLine": 1, "endLine": 20, "sourceCode": "class ConfigParser {}"},
    {"id": "m1", "label": "parse", "type": "method", "language": "typescript", "filePath": "src/config.ts", "parentId": "c1", "startLine": 3, "endLine": 8, "sourceCode": "parse() { return 1 }"}
  ],
  "edges": [{"source": "f1", "target": "c1", "type": "contains"}]
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	g, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 3)

	n, ok := g.Node("c1")
	require.True(t, ok)
	assert.Equal(t, "ConfigParser", n.Label)

	children := g.Children("c1")
	require.Len(t, children, 1)
	assert.Equal(t, "parse", children[0].Label)
}

func TestLoadFile_Invalid(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(tmpDir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{nodes"), 0644))
		_, err := LoadFile(path)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("missing id", func(t *testing.T) {
		path := filepath.Join(tmpDir, "noid.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"nodes":[{"label":"x"}]}`), 0644))
		_, err := LoadFile(path)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(tmpDir, "nope.json"))
		assert.Error(t, err)
	})
}

func TestFromGoSource(t *testing.T) {
	tmpDir := t.TempDir()

	user := `package store

// User is an account holder
type User struct {
	ID   int
	Name string
}

// Repository loads users
type Repository interface {
	Find(id int) (*User, error)
}
`
	methods := `package store

// Rename changes the display name
func (u *User) Rename(name string) {
	u.Name = name
}

func NewUser(id int) *User {
	return &User{ID: id}
}
`
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "store"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "store", "user.go"), []byte(user), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "store", "methods.go"), []byte(methods), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "store", "user_test.go"), []byte("package store\n\nfunc helper() {}\n"), 0644))

	g, err := FromGoSource(context.Background(), tmpDir, GoSourceOptions{})
	require.NoError(t, err)

	byLabel := make(map[string]Node)
	for _, n := range g.Nodes {
		byLabel[n.Label] = n
	}

	assert.Equal(t, TypeClass, byLabel["User"].Type)
	assert.Equal(t, "User is an account holder", byLabel["User"].Documentation)
	assert.Equal(t, TypeInterface, byLabel["Repository"].Type)
	assert.Equal(t, TypeFunction, byLabel["NewUser"].Type)
	assert.NotContains(t, byLabel, "helper")

	rename := byLabel["Rename"]
	assert.Equal(t, TypeMethod, rename.Type)
	assert.Equal(t, byLabel["User"].ID, rename.ParentID, "method should link to type in another file")
	assert.Contains(t, rename.SourceCode, "u.Name = name")
	assert.Equal(t, 4, rename.StartLine)
}
