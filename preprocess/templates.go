package preprocess

import (
	"fmt"
	"strings"

	"sofl/ast"
)

// Monomorphizer expands template classes and functions into concrete,
// name-mangled copies (spec §4.6, §9). classMemo/funcMemo double as the
// cycle guard: a key is seeded with a nil sentinel before its body is
// substituted, so a self-referential generic (e.g. a list node whose field
// refers back to the same instantiation) resolves to the same mangled name
// instead of recursing forever (spec §9 design note, Open Question (b)).
type Monomorphizer struct {
	classesByName   map[string]*ast.ClassDecl
	functionsByName map[string]*ast.Function

	classMemo map[string]*ast.ClassDecl
	funcMemo  map[string]*ast.Function

	outClasses []*ast.ClassDecl
	outFuncs   []*ast.Function
}

// Monomorphize expands every concrete (non-generic) top-level declaration
// and everything it transitively references, discarding any template left
// unused by the program.
func Monomorphize(classes []*ast.ClassDecl, functions []*ast.Function) (*ast.Program, error) {
	m := &Monomorphizer{
		classesByName:   make(map[string]*ast.ClassDecl, len(classes)),
		functionsByName: make(map[string]*ast.Function, len(functions)),
		classMemo:       make(map[string]*ast.ClassDecl),
		funcMemo:        make(map[string]*ast.Function),
	}
	for _, c := range classes {
		m.classesByName[c.Name] = c
	}
	for _, f := range functions {
		m.functionsByName[f.Name] = f
	}

	for _, c := range classes {
		if len(c.TypeParams) == 0 && len(c.IntParams) == 0 {
			if _, err := m.ExpandClass(c.Name, nil); err != nil {
				return nil, err
			}
		}
	}
	for _, f := range functions {
		if len(f.TypeParams) == 0 && len(f.IntParams) == 0 {
			if _, err := m.ExpandFunction(f.Name, nil); err != nil {
				return nil, err
			}
		}
	}

	return &ast.Program{Classes: m.outClasses, Functions: m.outFuncs}, nil
}

func mangle(name string, args []ast.TemplateArg) string {
	if len(args) == 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte('_')
		b.WriteString(sanitizeMangle(a.String()))
	}
	return b.String()
}

func sanitizeMangle(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func bindParams(typeParams, intParams []string, args []ast.TemplateArg) (map[string]ast.Type, map[string]int32, error) {
	if len(args) != len(typeParams)+len(intParams) {
		return nil, nil, fmt.Errorf("preprocess: expected %d template argument(s), got %d", len(typeParams)+len(intParams), len(args))
	}
	tbind := make(map[string]ast.Type, len(typeParams))
	ibind := make(map[string]int32, len(intParams))
	for i, name := range typeParams {
		if args[i].Type == nil {
			return nil, nil, fmt.Errorf("preprocess: template argument %d must be a type", i)
		}
		tbind[name] = args[i].Type
	}
	for i, name := range intParams {
		a := args[len(typeParams)+i]
		if a.Int == nil {
			return nil, nil, fmt.Errorf("preprocess: template argument %d must be an integer", len(typeParams)+i)
		}
		ibind[name] = *a.Int
	}
	return tbind, ibind, nil
}

// ExpandClass resolves and memoizes one concrete instantiation of a class
// declaration, returning its mangled name.
func (m *Monomorphizer) ExpandClass(name string, args []ast.TemplateArg) (string, error) {
	key := mangle(name, args)
	if _, ok := m.classMemo[key]; ok {
		return key, nil
	}

	decl, ok := m.classesByName[name]
	if !ok {
		return "", fmt.Errorf("preprocess: undeclared class %q", name)
	}

	tbind, ibind, err := bindParams(decl.TypeParams, decl.IntParams, args)
	if err != nil {
		return "", fmt.Errorf("preprocess: class %q: %w", name, err)
	}

	m.classMemo[key] = nil // sentinel: expansion in progress

	fields := make([]ast.Field, len(decl.Fields))
	for i, f := range decl.Fields {
		ft, err := m.substituteType(f.Type, tbind, ibind)
		if err != nil {
			return "", fmt.Errorf("preprocess: class %q field %q: %w", name, f.Name, err)
		}
		mult := f.Multiplicity
		if f.MultiplicityParam != "" {
			iv, ok := ibind[f.MultiplicityParam]
			if !ok {
				return "", fmt.Errorf("preprocess: class %q field %q: unbound int parameter %q", name, f.Name, f.MultiplicityParam)
			}
			mult = int(iv)
		}
		fields[i] = ast.Field{Name: f.Name, Type: ft, Multiplicity: mult}
	}

	expanded := &ast.ClassDecl{Name: key, Fields: fields}
	m.classMemo[key] = expanded
	m.outClasses = append(m.outClasses, expanded)
	return key, nil
}

// ExpandFunction resolves and memoizes one concrete instantiation of a
// function declaration, returning its mangled name.
func (m *Monomorphizer) ExpandFunction(name string, args []ast.TemplateArg) (string, error) {
	key := mangle(name, args)
	if _, ok := m.funcMemo[key]; ok {
		return key, nil
	}

	decl, ok := m.functionsByName[name]
	if !ok {
		return "", fmt.Errorf("preprocess: undeclared function %q", name)
	}

	tbind, ibind, err := bindParams(decl.TypeParams, decl.IntParams, args)
	if err != nil {
		return "", fmt.Errorf("preprocess: function %q: %w", name, err)
	}

	m.funcMemo[key] = nil

	ret, err := m.substituteType(decl.Return, tbind, ibind)
	if err != nil {
		return "", fmt.Errorf("preprocess: function %q return type: %w", name, err)
	}

	params := make([]ast.Param, len(decl.Params))
	for i, p := range decl.Params {
		pt, err := m.substituteType(p.Type, tbind, ibind)
		if err != nil {
			return "", fmt.Errorf("preprocess: function %q param %q: %w", name, p.Name, err)
		}
		params[i] = ast.Param{Name: p.Name, Type: pt}
	}

	body, err := m.substStmts(decl.Body, tbind, ibind)
	if err != nil {
		return "", fmt.Errorf("preprocess: function %q: %w", name, err)
	}

	fn := &ast.Function{Name: key, Return: ret, Params: params, Body: body}
	m.funcMemo[key] = fn
	m.outFuncs = append(m.outFuncs, fn)
	return key, nil
}

// substituteType replaces template placeholders in t with their bound
// concrete types/counts, recursively expanding any nested generic
// reference it encounters.
func (m *Monomorphizer) substituteType(t ast.Type, tbind map[string]ast.Type, ibind map[string]int32) (ast.Type, error) {
	switch v := t.(type) {
	case ast.NumType:
		return v, nil
	case ast.ClassType:
		return v, nil
	case ast.ArrayType:
		elem, err := m.substituteType(v.Elem, tbind, ibind)
		if err != nil {
			return nil, err
		}
		count := v.Count
		if v.CountParam != "" {
			iv, ok := ibind[v.CountParam]
			if !ok {
				return nil, fmt.Errorf("unbound int parameter %q", v.CountParam)
			}
			count = int(iv)
		}
		return ast.ArrayType{Elem: elem, Count: count}, nil
	case ast.GenericRef:
		if len(v.Args) == 0 {
			if bound, ok := tbind[v.Name]; ok {
				return bound, nil
			}
			decl, ok := m.classesByName[v.Name]
			if !ok {
				return nil, fmt.Errorf("unresolved type %q", v.Name)
			}
			if len(decl.TypeParams) > 0 || len(decl.IntParams) > 0 {
				return nil, fmt.Errorf("class %q requires template arguments", v.Name)
			}
			mangled, err := m.ExpandClass(v.Name, nil)
			if err != nil {
				return nil, err
			}
			return ast.ClassType{Name: mangled}, nil
		}

		resolved, err := m.resolveTemplateArgs(v.Args, tbind, ibind)
		if err != nil {
			return nil, err
		}
		mangled, err := m.ExpandClass(v.Name, resolved)
		if err != nil {
			return nil, err
		}
		return ast.ClassType{Name: mangled}, nil
	default:
		return nil, fmt.Errorf("cannot resolve type %T", t)
	}
}

func (m *Monomorphizer) resolveTemplateArgs(args []ast.TemplateArg, tbind map[string]ast.Type, ibind map[string]int32) ([]ast.TemplateArg, error) {
	out := make([]ast.TemplateArg, len(args))
	for i, a := range args {
		if a.Int != nil {
			out[i] = a
			continue
		}
		rt, err := m.substituteType(a.Type, tbind, ibind)
		if err != nil {
			return nil, err
		}
		out[i] = ast.TemplateArg{Type: rt}
	}
	return out, nil
}

func (m *Monomorphizer) substStmts(stmts []ast.Stmt, tbind map[string]ast.Type, ibind map[string]int32) ([]ast.Stmt, error) {
	out := make([]ast.Stmt, len(stmts))
	for i, s := range stmts {
		ns, err := m.substStmt(s, tbind, ibind)
		if err != nil {
			return nil, err
		}
		out[i] = ns
	}
	return out, nil
}

func (m *Monomorphizer) substStmt(s ast.Stmt, tbind map[string]ast.Type, ibind map[string]int32) (ast.Stmt, error) {
	switch v := s.(type) {
	case *ast.VarDecl:
		t, err := m.substituteType(v.Type, tbind, ibind)
		if err != nil {
			return nil, err
		}
		return ast.NewVarDecl(v.Line(), v.Name, t), nil

	case *ast.VarDeclInit:
		var t ast.Type
		if v.Type != nil {
			var err error
			t, err = m.substituteType(v.Type, tbind, ibind)
			if err != nil {
				return nil, err
			}
		}
		init, err := m.substExpr(v.Init, tbind, ibind)
		if err != nil {
			return nil, err
		}
		return ast.NewVarDeclInit(v.Line(), v.Name, t, init), nil

	case *ast.AssignIdent:
		val, err := m.substExpr(v.Value, tbind, ibind)
		if err != nil {
			return nil, err
		}
		return ast.NewAssignIdent(v.Line(), v.Name, val), nil

	case *ast.AssignIndex:
		idx, err := m.substExpr(v.Index, tbind, ibind)
		if err != nil {
			return nil, err
		}
		val, err := m.substExpr(v.Value, tbind, ibind)
		if err != nil {
			return nil, err
		}
		return ast.NewAssignIndex(v.Line(), v.Name, idx, val), nil

	case *ast.If:
		cond, err := m.substExpr(v.Cond, tbind, ibind)
		if err != nil {
			return nil, err
		}
		body, err := m.substStmts(v.Body, tbind, ibind)
		if err != nil {
			return nil, err
		}
		return ast.NewIf(v.Line(), cond, body), nil

	case *ast.While:
		cond, err := m.substExpr(v.Cond, tbind, ibind)
		if err != nil {
			return nil, err
		}
		body, err := m.substStmts(v.Body, tbind, ibind)
		if err != nil {
			return nil, err
		}
		return ast.NewWhile(v.Line(), cond, body), nil

	case *ast.Abort:
		return ast.NewAbort(v.Line()), nil

	default:
		return nil, fmt.Errorf("unknown statement type %T", s)
	}
}

func (m *Monomorphizer) substExprs(exprs []ast.Expr, tbind map[string]ast.Type, ibind map[string]int32) ([]ast.Expr, error) {
	out := make([]ast.Expr, len(exprs))
	for i, e := range exprs {
		ne, err := m.substExpr(e, tbind, ibind)
		if err != nil {
			return nil, err
		}
		out[i] = ne
	}
	return out, nil
}

func (m *Monomorphizer) substExpr(e ast.Expr, tbind map[string]ast.Type, ibind map[string]int32) (ast.Expr, error) {
	switch v := e.(type) {
	case ast.IntLit, ast.Ident, ast.FieldAccess:
		return v, nil

	case ast.IndexExpr:
		idx, err := m.substExpr(v.Index, tbind, ibind)
		if err != nil {
			return nil, err
		}
		return ast.IndexExpr{Name: v.Name, Index: idx}, nil

	case ast.Unary:
		x, err := m.substExpr(v.X, tbind, ibind)
		if err != nil {
			return nil, err
		}
		return ast.Unary{X: x}, nil

	case ast.Binary:
		x, err := m.substExpr(v.X, tbind, ibind)
		if err != nil {
			return nil, err
		}
		y, err := m.substExpr(v.Y, tbind, ibind)
		if err != nil {
			return nil, err
		}
		return ast.Binary{Op: v.Op, X: x, Y: y}, nil

	case ast.Call:
		args, err := m.substExprs(v.Args, tbind, ibind)
		if err != nil {
			return nil, err
		}
		callee := v.Callee
		if len(v.TemplateArgs) > 0 {
			resolved, err := m.resolveTemplateArgs(v.TemplateArgs, tbind, ibind)
			if err != nil {
				return nil, err
			}
			callee, err = m.ExpandFunction(v.Callee, resolved)
			if err != nil {
				return nil, err
			}
		}
		return ast.Call{Callee: callee, Args: args}, nil

	case ast.ConstructorCall:
		args, err := m.substExprs(v.Args, tbind, ibind)
		if err != nil {
			return nil, err
		}
		class := v.Class
		if len(v.TemplateArgs) > 0 {
			resolved, err := m.resolveTemplateArgs(v.TemplateArgs, tbind, ibind)
			if err != nil {
				return nil, err
			}
			class, err = m.ExpandClass(v.Class, resolved)
			if err != nil {
				return nil, err
			}
		}
		return ast.ConstructorCall{Class: class, Args: args}, nil

	default:
		return nil, fmt.Errorf("unknown expression type %T", e)
	}
}
