package graph

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// GoSourceOptions controls which files the Go producer reads
type GoSourceOptions struct {
	IncludeTests  bool
	IncludeVendor bool
	Workers       int
}

// FromGoSource builds a code graph from the Go files under root.
// Files with syntax errors contribute whatever partial AST the parser returns.
func FromGoSource(ctx context.Context, root string, opts GoSourceOptions) (*Graph, error) {
	files, err := discoverGoFiles(root, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	perFile := make([][]Node, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			nodes, err := parseGoFile(path, filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			perFile[i] = nodes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var nodes []Node
	for _, fileNodes := range perFile {
		nodes = append(nodes, fileNodes...)
	}
	linkMethodsToTypes(nodes)

	return New(nodes), nil
}

// discoverGoFiles finds all Go files in the project in a stable order
func discoverGoFiles(root string, opts GoSourceOptions) ([]string, error) {
	var files []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if !opts.IncludeVendor && info.Name() == "vendor" {
				return filepath.SkipDir
			}
			if path != root && (strings.HasPrefix(info.Name(), ".") || strings.HasPrefix(info.Name(), "_")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		if !opts.IncludeTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}

		files = append(files, path)
		return nil
	})

	sort.Strings(files)
	return files, err
}

// parseGoFile extracts file, function, method, struct and interface nodes
func parseGoFile(path, relPath string) ([]Node, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	fset := token.NewFileSet()
	file, _ := parser.ParseFile(fset, path, content, parser.ParseComments)
	if file == nil {
		return nil, nil
	}

	lines := strings.Split(string(content), "\n")
	fileID := "go:" + relPath

	e := &goExtractor{
		fset:    fset,
		lines:   lines,
		relPath: relPath,
		fileID:  fileID,
		dir:     filepath.ToSlash(filepath.Dir(relPath)),
	}

	e.nodes = append(e.nodes, Node{
		ID:         fileID,
		Label:      filepath.Base(relPath),
		Type:       TypeFile,
		Language:   "go",
		FilePath:   relPath,
		StartLine:  1,
		EndLine:    len(lines),
		SourceCode: "",
	})

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			e.extractFunction(d)
		case *ast.GenDecl:
			if d.Tok == token.TYPE {
				for _, spec := range d.Specs {
					if ts, ok := spec.(*ast.TypeSpec); ok {
						e.extractTypeSpec(ts, d)
					}
				}
			}
		}
	}

	return e.nodes, nil
}

type goExtractor struct {
	fset    *token.FileSet
	lines   []string
	relPath string
	fileID  string
	dir     string
	nodes   []Node
}

func (e *goExtractor) extractFunction(fn *ast.FuncDecl) {
	n := Node{
		ID:            e.fileID + "#" + fn.Name.Name,
		Label:         fn.Name.Name,
		Type:          TypeFunction,
		Language:      "go",
		FilePath:      e.relPath,
		ParentID:      e.fileID,
		Documentation: docText(fn.Doc),
	}

	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		recv := receiverTypeName(fn.Recv.List[0].Type)
		n.Type = TypeMethod
		n.ID = e.fileID + "#" + recv + "." + fn.Name.Name
		// resolved to the type node by linkMethodsToTypes
		n.ParentID = pendingParent(e.dir, recv)
	}

	e.fillSpan(&n, fn.Pos(), fn.End())
	e.nodes = append(e.nodes, n)
}

func (e *goExtractor) extractTypeSpec(ts *ast.TypeSpec, decl *ast.GenDecl) {
	var kind string
	switch ts.Type.(type) {
	case *ast.StructType:
		kind = TypeClass
	case *ast.InterfaceType:
		kind = TypeInterface
	default:
		return
	}

	doc := ts.Doc
	if doc == nil && len(decl.Specs) == 1 {
		doc = decl.Doc
	}

	n := Node{
		ID:            e.fileID + "#" + ts.Name.Name,
		Label:         ts.Name.Name,
		Type:          kind,
		Language:      "go",
		FilePath:      e.relPath,
		ParentID:      e.fileID,
		Documentation: docText(doc),
	}

	start := ts.Pos()
	if len(decl.Specs) == 1 {
		start = decl.Pos()
	}
	e.fillSpan(&n, start, ts.End())
	e.nodes = append(e.nodes, n)
}

func (e *goExtractor) fillSpan(n *Node, start, end token.Pos) {
	n.StartLine = e.fset.Position(start).Line
	n.EndLine = e.fset.Position(end).Line
	if n.StartLine <= 0 || n.StartLine > len(e.lines) {
		return
	}
	endIdx := n.EndLine
	if endIdx > len(e.lines) {
		endIdx = len(e.lines)
	}
	n.SourceCode = strings.Join(e.lines[n.StartLine-1:endIdx], "\n")
}

const pendingPrefix = "pending:"

func pendingParent(dir, typeName string) string {
	return pendingPrefix + dir + "|" + typeName
}

// linkMethodsToTypes points method parents at their receiver type node,
// which may live in another file of the same package
func linkMethodsToTypes(nodes []Node) {
	types := make(map[string]string)
	fileOf := make(map[string]string)
	for _, n := range nodes {
		if n.Type == TypeClass || n.Type == TypeInterface {
			types[filepath.ToSlash(filepath.Dir(n.FilePath))+"|"+n.Label] = n.ID
		}
		if n.Type == TypeFile {
			fileOf[n.FilePath] = n.ID
		}
	}

	for i := range nodes {
		n := &nodes[i]
		if !strings.HasPrefix(n.ParentID, pendingPrefix) {
			continue
		}
		if id, ok := types[strings.TrimPrefix(n.ParentID, pendingPrefix)]; ok {
			n.ParentID = id
		} else {
			n.ParentID = fileOf[n.FilePath]
		}
	}
}

// receiverTypeName extracts the receiver type name from a method
func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.IndexExpr:
		return receiverTypeName(t.X)
	case *ast.IndexListExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

func docText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}
