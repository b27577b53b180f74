// Package preprocess resolves `load` imports transitively and expands
// templates into concrete, monomorphized declarations (spec §4.6),
// producing the ast.Program the translator consumes. Both passes are
// grounded on original_source/soflang/preprocess.py's two responsibilities
// (import flattening, then template substitution) kept as two files here
// rather than one, matching how the teacher splits compile-time concerns
// across files in gvm/vm (compile.go vs bytecode.go).
package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sofl/ast"
	"sofl/parser"
)

// FileSystemLoader resolves import names to source files on disk. A name
// beginning with "@/" is rooted at LibRoot (a shared library path); any
// other name is resolved relative to the directory of the importing file,
// falling back to each of SearchPaths in order if it isn't found there —
// so a file loaded via "@/" can still `load` something relative to one of
// the library's own search roots, not just its own directory. The parser's
// `load` directive accepts a single identifier only, so "@/" names and names
// containing path separators cannot be written in source text.
type FileSystemLoader struct {
	LibRoot     string
	SearchPaths []string
}

func (fl FileSystemLoader) resolvePath(importName, fromDir string) string {
	if strings.HasPrefix(importName, "@/") {
		return filepath.Join(fl.LibRoot, strings.TrimPrefix(importName, "@/")) + ".sofl"
	}
	candidate := filepath.Join(fromDir, importName) + ".sofl"
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	for _, dir := range fl.SearchPaths {
		alt := filepath.Join(dir, importName) + ".sofl"
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}
	return candidate
}

func (fl FileSystemLoader) load(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("preprocess: loading %s: %w", path, err)
	}
	return string(b), nil
}

// resolver performs the depth-first `load` traversal with cycle detection
// (spec §4.6, §9 open question (b)'s DFS requirement extends naturally to
// imports as well as templates).
type resolver struct {
	loader    FileSystemLoader
	visited   map[string]bool
	visiting  map[string]bool
	classes   []*ast.ClassDecl
	functions []*ast.Function
}

func newResolver(loader FileSystemLoader) *resolver {
	return &resolver{
		loader:   loader,
		visited:  make(map[string]bool),
		visiting: make(map[string]bool),
	}
}

func (r *resolver) resolveFile(path string) error {
	canon, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if r.visited[canon] {
		return nil
	}
	if r.visiting[canon] {
		return fmt.Errorf("preprocess: import cycle detected at %s", canon)
	}
	r.visiting[canon] = true

	src, err := r.loader.load(canon)
	if err != nil {
		return err
	}
	unit, err := parser.ParseUnit(src)
	if err != nil {
		return fmt.Errorf("preprocess: %s: %w", canon, err)
	}

	dir := filepath.Dir(canon)
	for _, imp := range unit.Imports {
		if err := r.resolveFile(r.loader.resolvePath(imp, dir)); err != nil {
			return err
		}
	}

	r.classes = append(r.classes, unit.Classes...)
	r.functions = append(r.functions, unit.Functions...)

	delete(r.visiting, canon)
	r.visited[canon] = true
	return nil
}

// ResolveUnit flattens entryPath and everything it transitively imports
// into one raw (pre-monomorphization) declaration set.
func ResolveUnit(entryPath string, loader FileSystemLoader) (classes []*ast.ClassDecl, functions []*ast.Function, err error) {
	r := newResolver(loader)
	if err := r.resolveFile(entryPath); err != nil {
		return nil, nil, err
	}
	return r.classes, r.functions, nil
}

// Run resolves imports starting at entryPath and then monomorphizes every
// template reachable from a concrete (non-generic) top-level declaration,
// returning the flattened, fully resolved Program the translator consumes.
func Run(entryPath string, loader FileSystemLoader) (*ast.Program, error) {
	classes, functions, err := ResolveUnit(entryPath, loader)
	if err != nil {
		return nil, err
	}
	return Monomorphize(classes, functions)
}
