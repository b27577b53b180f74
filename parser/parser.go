package parser

import (
	"fmt"
	"strconv"
	"unicode"

	"sofl/ast"
)

type parser struct {
	toks []token
	pos  int
}

// ParseUnit parses one source file's text into its raw declarations.
func ParseUnit(src string) (*Unit, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseUnit()
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) line() int   { return p.cur().line }
func (p *parser) atEOF() bool { return p.cur().kind == tokEOF }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expectPunct(s string) error {
	t := p.cur()
	if t.kind != tokPunct || t.text != s {
		return fmt.Errorf("parser: line %d: expected %q, got %q", t.line, s, t.text)
	}
	p.next()
	return nil
}

func (p *parser) atPunct(s string) bool {
	t := p.cur()
	return t.kind == tokPunct && t.text == s
}

func (p *parser) expectIdent() (string, error) {
	t := p.cur()
	if t.kind != tokIdent {
		return "", fmt.Errorf("parser: line %d: expected identifier, got %q", t.line, t.text)
	}
	p.next()
	return t.text, nil
}

func isUpperFirst(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func (p *parser) parseUnit() (*Unit, error) {
	u := &Unit{}
	for !p.atEOF() {
		if p.cur().kind == tokIdent && p.cur().text == "load" {
			p.next()
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(";"); err != nil {
				return nil, err
			}
			u.Imports = append(u.Imports, name)
			continue
		}

		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}

		typeParams, intParams, err := p.parseOptTemplateParams()
		if err != nil {
			return nil, err
		}

		if p.atPunct(":") {
			decl, err := p.parseClassBody(name, typeParams, intParams)
			if err != nil {
				return nil, err
			}
			u.Classes = append(u.Classes, decl)
			continue
		}

		fn, err := p.parseFunctionBody(name, typeParams, intParams)
		if err != nil {
			return nil, err
		}
		u.Functions = append(u.Functions, fn)
	}
	return u, nil
}

// parseOptTemplateParams parses an optional `<a, b, #n>` parameter list
// declared on a class or function name: bare identifiers are type
// parameters, `#`-prefixed identifiers are integer parameters.
func (p *parser) parseOptTemplateParams() (typeParams, intParams []string, err error) {
	if !p.atPunct("<") {
		return nil, nil, nil
	}
	p.next()
	for {
		if p.atPunct("#") {
			p.next()
			name, err := p.expectIdent()
			if err != nil {
				return nil, nil, err
			}
			intParams = append(intParams, name)
		} else {
			name, err := p.expectIdent()
			if err != nil {
				return nil, nil, err
			}
			typeParams = append(typeParams, name)
		}
		if p.atPunct(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct(">"); err != nil {
		return nil, nil, err
	}
	return typeParams, intParams, nil
}

func (p *parser) parseClassBody(name string, typeParams, intParams []string) (*ast.ClassDecl, error) {
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	var fields []ast.Field
	for {
		fname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("#"); err != nil {
			return nil, err
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		f := ast.Field{Name: fname}
		if arr, ok := t.(ast.ArrayType); ok {
			f.Type = arr.Elem
			f.Multiplicity = arr.Count
			f.MultiplicityParam = arr.CountParam
		} else {
			f.Type = t
		}
		fields = append(fields, f)

		if p.atPunct(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return &ast.ClassDecl{Name: name, Fields: fields, TypeParams: typeParams, IntParams: intParams}, nil
}

// parseType parses a base type (`Num`, a class name, or a type-parameter
// placeholder, optionally template-instantiated) followed by zero or more
// `*N` / `*name` array-multiplicity suffixes.
func (p *parser) parseType() (ast.Type, error) {
	var base ast.Type
	if p.cur().kind == tokIdent && p.cur().text == "Num" {
		p.next()
		base = ast.NumType{}
	} else {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		args, err := p.parseOptTemplateArgs()
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			base = ast.GenericRef{Name: name}
		} else {
			base = ast.GenericRef{Name: name, Args: args}
		}
	}

	for p.atPunct("*") {
		p.next()
		if p.cur().kind == tokInt {
			n, err := strconv.Atoi(p.next().text)
			if err != nil {
				return nil, err
			}
			base = ast.ArrayType{Elem: base, Count: n}
		} else {
			pname, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			base = ast.ArrayType{Elem: base, CountParam: pname}
		}
	}
	return base, nil
}

func (p *parser) parseOptTemplateArgs() ([]ast.TemplateArg, error) {
	if !p.atPunct("<") {
		return nil, nil
	}
	p.next()
	var args []ast.TemplateArg
	for {
		if p.cur().kind == tokInt {
			n, err := strconv.Atoi(p.next().text)
			if err != nil {
				return nil, err
			}
			v := int32(n)
			args = append(args, ast.TemplateArg{Int: &v})
		} else {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			args = append(args, ast.TemplateArg{Type: t})
		}
		if p.atPunct(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct(">"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parseFunctionBody(name string, typeParams, intParams []string) (*ast.Function, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var params []ast.Param
	for !p.atPunct(")") {
		pname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("#"); err != nil {
			return nil, err
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		params = append(params, ast.Param{Name: pname, Type: t})
		if p.atPunct(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	var ret ast.Type = ast.NumType{}
	if p.atPunct("#") {
		p.next()
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		ret = t
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.Function{Name: name, Return: ret, Params: params, Body: body, TypeParams: typeParams, IntParams: intParams}, nil
}

func (p *parser) parseBlock() ([]ast.Stmt, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for !p.atPunct("}") {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	p.next()
	return stmts, nil
}

func (p *parser) parseStmt() (ast.Stmt, error) {
	line := p.line()

	if p.cur().kind == tokIdent && p.cur().text == "abort" {
		p.next()
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return ast.NewAbort(line), nil
	}

	if p.cur().kind == tokIdent && p.cur().text == "auto" {
		p.next()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		init, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return ast.NewVarDeclInit(line, name, nil, init), nil
	}

	// Either a variable declaration (`TypeExpr name;` / `TypeExpr name = expr;`)
	// or an assignment/conditional-trailer (`name = expr;`, `name[i] = expr;`,
	// `cond ?? {...}`, `cond ...? {...}`). Disambiguate by trying a type first;
	// a bare lowercase identifier with no following identifier is a var name,
	// not a type, so it falls through to assignment parsing.
	if p.cur().kind == tokIdent && (p.cur().text == "Num" || (isUpperFirst(p.cur().text) && p.peekIsTypeStart())) {
		savedPos := p.pos
		t, err := p.parseType()
		if err == nil && p.cur().kind == tokIdent {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if p.atPunct("=") {
				p.next()
				init, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				if err := p.expectPunct(";"); err != nil {
					return nil, err
				}
				return ast.NewVarDeclInit(line, name, t, init), nil
			}
			if err := p.expectPunct(";"); err != nil {
				return nil, err
			}
			return ast.NewVarDecl(line, name, t), nil
		}
		p.pos = savedPos
	}

	// A conditional/loop (`cond ?? {...}` / `cond ...? {...}`, marker
	// trailing the condition) or a plain assignment.
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.cur().kind == tokIf {
		p.next()
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return ast.NewIf(line, expr, body), nil
	}
	if p.cur().kind == tokWhile {
		p.next()
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return ast.NewWhile(line, expr, body), nil
	}

	if ident, ok := expr.(ast.Ident); ok && p.atPunct("=") {
		p.next()
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return ast.NewAssignIdent(line, ident.Name, value), nil
	}
	if idx, ok := expr.(ast.IndexExpr); ok && p.atPunct("=") {
		p.next()
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(";"); err != nil {
			return nil, err
		}
		return ast.NewAssignIndex(line, idx.Name, idx.Index, value), nil
	}

	return nil, fmt.Errorf("parser: line %d: statement is not an assignment, declaration, abort, or conditional", line)
}

// peekIsTypeStart reports whether the token after the current identifier
// looks like the start of a type use (another identifier, `*`, or `<`)
// rather than an assignment/call, so `Point p;` is read as a declaration
// while `Point(1,2)` used as an expression statement's head is not
// mistaken for one.
func (p *parser) peekIsTypeStart() bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	nt := p.toks[p.pos+1]
	return nt.kind == tokIdent || (nt.kind == tokPunct && (nt.text == "*" || nt.text == "<"))
}

// parseExpr parses a non-chained binary expression: an atom, optionally
// followed by one operator and one more atom.
func (p *parser) parseExpr() (ast.Expr, error) {
	x, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	op, ok := p.peekBinOp()
	if !ok {
		return x, nil
	}
	p.next()
	y, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	return ast.Binary{Op: op, X: x, Y: y}, nil
}

func (p *parser) peekBinOp() (ast.BinOp, bool) {
	if p.cur().kind != tokPunct {
		return "", false
	}
	switch p.cur().text {
	case "+":
		return ast.OpAdd, true
	case "-":
		return ast.OpSub, true
	case "*":
		return ast.OpMul, true
	case "/":
		return ast.OpDiv, true
	case "<":
		return ast.OpLess, true
	}
	return "", false
}

func (p *parser) parseAtom() (ast.Expr, error) {
	t := p.cur()

	if t.kind == tokPunct && t.text == "~" {
		p.next()
		x, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return ast.Unary{X: x}, nil
	}

	if t.kind == tokInt {
		p.next()
		n, err := strconv.ParseInt(t.text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parser: line %d: invalid integer literal %q: %w", t.line, t.text, err)
		}
		return ast.IntLit{Value: int32(n)}, nil
	}

	if t.kind == tokIdent {
		name, _ := p.expectIdent()

		if p.atPunct("#") {
			p.next()
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return ast.FieldAccess{Name: name, Field: field}, nil
		}

		if p.atPunct("[") {
			p.next()
			idx, err := p.parseIndexOperand()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			return ast.IndexExpr{Name: name, Index: idx}, nil
		}

		templateArgs, err := p.parseOptTemplateArgs()
		if err != nil {
			return nil, err
		}

		if p.atPunct("(") {
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			if isUpperFirst(name) {
				return ast.ConstructorCall{Class: name, Args: args, TemplateArgs: templateArgs}, nil
			}
			return ast.Call{Callee: name, Args: args, TemplateArgs: templateArgs}, nil
		}

		return ast.Ident{Name: name}, nil
	}

	return nil, fmt.Errorf("parser: line %d: expected an expression, got %q", t.line, t.text)
}

// parseIndexOperand enforces Open Question (c): an array index is a literal
// or an identifier only, never a general expression.
func (p *parser) parseIndexOperand() (ast.Expr, error) {
	t := p.cur()
	if t.kind == tokInt {
		p.next()
		n, err := strconv.ParseInt(t.text, 10, 32)
		if err != nil {
			return nil, err
		}
		return ast.IntLit{Value: int32(n)}, nil
	}
	if t.kind == tokIdent {
		p.next()
		return ast.Ident{Name: t.text}, nil
	}
	return nil, fmt.Errorf("parser: line %d: array index must be a literal or identifier, got %q", t.line, t.text)
}

func (p *parser) parseArgList() ([]ast.Expr, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []ast.Expr
	for !p.atPunct(")") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.atPunct(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return args, nil
}
