package parser

import "sofl/ast"

// Unit is one source file's declarations before import flattening or
// template resolution: spec's "parsed AST" pipeline stage, which — because
// the grammar itself is out of scope for this project — we produce
// ourselves rather than taking as an external input.
type Unit struct {
	Imports   []string
	Classes   []*ast.ClassDecl
	Functions []*ast.Function
}
