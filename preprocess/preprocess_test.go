package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"sofl/ast"
	"sofl/parser"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func mustUnit(t *testing.T, src string) *parser.Unit {
	t.Helper()
	u, err := parser.ParseUnit(src)
	assert(t, err == nil, "ParseUnit failed: %v", err)
	return u
}

func TestMonomorphizeSimpleClassAndFunction(t *testing.T) {
	u := mustUnit(t, `
P: x#Num, y#Num;
main() {
  P p;
  p = P(7, 9);
  result = p#y;
}
`)
	prog, err := Monomorphize(u.Classes, u.Functions)
	assert(t, err == nil, "Monomorphize failed: %v", err)
	assert(t, len(prog.Classes) == 1, "got %d classes, want 1", len(prog.Classes))
	assert(t, prog.Classes[0].Name == "P", "class name = %q", prog.Classes[0].Name)
	assert(t, len(prog.Functions) == 1, "got %d functions, want 1", len(prog.Functions))
	assert(t, prog.Functions[0].Name == "main", "function name = %q", prog.Functions[0].Name)
}

func TestMonomorphizeGenericClassMangling(t *testing.T) {
	u := mustUnit(t, `
Box<T>: item#T;
main() {
  Box<Num> b;
  b = Box<Num>(3);
  result = b#item;
}
`)
	prog, err := Monomorphize(u.Classes, u.Functions)
	assert(t, err == nil, "Monomorphize failed: %v", err)
	assert(t, len(prog.Classes) == 1, "got %d classes, want 1 (unused generic must be dropped)", len(prog.Classes))
	assert(t, prog.Classes[0].Name == "Box_Num", "mangled name = %q", prog.Classes[0].Name)

	decl := prog.Functions[0].Body[0].(*ast.VarDecl)
	ct, ok := decl.Type.(ast.ClassType)
	assert(t, ok, "var decl type = %T, want ast.ClassType", decl.Type)
	assert(t, ct.Name == "Box_Num", "var decl class = %q", ct.Name)
}

func TestMonomorphizeSelfReferentialGenericDoesNotRecurseForever(t *testing.T) {
	u := mustUnit(t, `
Node<T>: val#T, next#Node<T>;
main() {
  Node<Num> n;
  result = 1;
}
`)
	prog, err := Monomorphize(u.Classes, u.Functions)
	assert(t, err == nil, "Monomorphize failed: %v", err)
	assert(t, len(prog.Classes) == 1, "got %d classes, want 1 (cycle must collapse to one instantiation)", len(prog.Classes))
	next := prog.Classes[0].Fields[1]
	ct, ok := next.Type.(ast.ClassType)
	assert(t, ok, "next field type = %T", next.Type)
	assert(t, ct.Name == "Node_Num", "self-reference mangled name = %q", ct.Name)
}

func TestMonomorphizeIdempotent(t *testing.T) {
	u := mustUnit(t, `
Box<T>: item#T;
main() {
  Box<Num> a;
  Box<Num> b;
  result = 1;
}
`)
	prog, err := Monomorphize(u.Classes, u.Functions)
	assert(t, err == nil, "Monomorphize failed: %v", err)
	assert(t, len(prog.Classes) == 1, "expanding the same instantiation twice produced %d classes, want 1", len(prog.Classes))
}

func TestResolveUnitFollowsImports(t *testing.T) {
	dir := t.TempDir()

	assert(t, os.WriteFile(filepath.Join(dir, "geom.sofl"), []byte(`
P: x#Num, y#Num;
`), 0o644) == nil, "write geom.sofl failed")

	entry := filepath.Join(dir, "main.sofl")
	assert(t, os.WriteFile(entry, []byte(`
load geom;
main() {
  P p;
  p = P(1, 2);
  result = p#x;
}
`), 0o644) == nil, "write main.sofl failed")

	loader := FileSystemLoader{}
	classes, functions, err := ResolveUnit(entry, loader)
	assert(t, err == nil, "ResolveUnit failed: %v", err)
	assert(t, len(classes) == 1, "got %d classes, want 1", len(classes))
	assert(t, len(functions) == 1, "got %d functions, want 1", len(functions))
}

func TestResolveUnitDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.sofl")
	b := filepath.Join(dir, "b.sofl")
	assert(t, os.WriteFile(a, []byte("load b;\n"), 0o644) == nil, "write a.sofl failed")
	assert(t, os.WriteFile(b, []byte("load a;\n"), 0o644) == nil, "write b.sofl failed")

	_, _, err := ResolveUnit(a, FileSystemLoader{})
	assert(t, err != nil, "expected a cycle error")
}
