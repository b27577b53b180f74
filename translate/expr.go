package translate

import (
	"fmt"

	"sofl/ast"
	"sofl/isa"
)

// emitLoadVar pushes vi's words onto the stack, most-significant word
// first (spec §4.3's Identifier rule). Because the absolute target address
// and the symbolic stack top advance together one word at a time, the
// relative offset is the same for every word in the transfer; it is
// computed once, before the loop, from the depth at the transfer's start.
func (t *translator) emitLoadVar(line int, vi varInfo) {
	rel := t.depth - vi.base
	for i := 0; i < vi.footprint; i++ {
		t.emit(line, isa.Instr{Op: isa.LOAD, Arg: int32(rel)})
		t.depth++
	}
}

// emitStoreVar writes the footprint words currently on top of the stack
// into vi's slot, popping from the top (least-significant word) first so
// stored order mirrors load order (spec §4.3). depthBefore is the symbolic
// depth captured before the value being stored was pushed.
func (t *translator) emitStoreVar(line int, vi varInfo, depthBefore int) {
	rel := depthBefore - vi.base
	for i := 0; i < vi.footprint; i++ {
		t.emit(line, isa.Instr{Op: isa.STORE, Arg: int32(rel)})
		t.depth--
	}
}

func (t *translator) classField(className, fieldName string) (offset, footprint int, err error) {
	return t.fc.FieldOffset(className, fieldName)
}

// inferType resolves the type of an `auto`-declared local's initializer.
// This stands in for the external semantic analyzer's type inference
// (spec §1 "Out of scope"); it only needs to be precise enough to size the
// declared variable's footprint correctly.
func (t *translator) inferType(e ast.Expr) (ast.Type, error) {
	switch v := e.(type) {
	case ast.IntLit, ast.Binary, ast.Unary:
		return ast.NumType{}, nil

	case ast.Ident:
		vi, ok := t.lookup(v.Name)
		if !ok {
			return nil, fmt.Errorf("translate: undefined variable %q", v.Name)
		}
		return vi.typ, nil

	case ast.FieldAccess:
		vi, ok := t.lookup(v.Name)
		if !ok {
			return nil, fmt.Errorf("translate: undefined variable %q", v.Name)
		}
		ct, ok := vi.typ.(ast.ClassType)
		if !ok {
			return nil, fmt.Errorf("translate: %q is not a class value", v.Name)
		}
		decl, ok := t.fc.Class(ct.Name)
		if !ok {
			return nil, fmt.Errorf("translate: undeclared class %q", ct.Name)
		}
		for _, f := range decl.Fields {
			if f.Name == v.Field {
				if f.Multiplicity > 1 {
					return ast.ArrayType{Elem: f.Type, Count: f.Multiplicity}, nil
				}
				return f.Type, nil
			}
		}
		return nil, fmt.Errorf("translate: class %q has no field %q", ct.Name, v.Field)

	case ast.IndexExpr:
		vi, ok := t.lookup(v.Name)
		if !ok {
			return nil, fmt.Errorf("translate: undefined variable %q", v.Name)
		}
		at, ok := vi.typ.(ast.ArrayType)
		if !ok {
			return nil, fmt.Errorf("translate: %q is not an array", v.Name)
		}
		return at.Elem, nil

	case ast.Call:
		sig, ok := t.funcs[v.Callee]
		if !ok {
			return nil, fmt.Errorf("translate: undeclared function %q", v.Callee)
		}
		return sig.fn.Return, nil

	case ast.ConstructorCall:
		return ast.ClassType{Name: v.Class}, nil

	default:
		return nil, fmt.Errorf("translate: cannot infer type of %T", e)
	}
}

// lowerExpr emits instructions that push e's value, occupying
// footprint(typeof(e)) words, onto the top of the operand stack.
func (t *translator) lowerExpr(e ast.Expr, line int) error {
	switch v := e.(type) {
	case ast.IntLit:
		t.emit(line, isa.Instr{Op: isa.PUSH, Arg: v.Value})
		t.depth++
		return nil

	case ast.Ident:
		vi, ok := t.lookup(v.Name)
		if !ok {
			return fmt.Errorf("translate: line %d: undefined variable %q", line, v.Name)
		}
		t.emitLoadVar(line, vi)
		return nil

	case ast.FieldAccess:
		vi, ok := t.lookup(v.Name)
		if !ok {
			return fmt.Errorf("translate: line %d: undefined variable %q", line, v.Name)
		}
		ct, ok := vi.typ.(ast.ClassType)
		if !ok {
			return fmt.Errorf("translate: line %d: %q is not a class value", line, v.Name)
		}
		offset, footprint, err := t.classField(ct.Name, v.Field)
		if err != nil {
			return err
		}
		t.emitLoadVar(line, varInfo{base: vi.base + offset, footprint: footprint})
		return nil

	case ast.IndexExpr:
		return t.lowerIndexLoad(v, line)

	case ast.Unary:
		if err := t.lowerExpr(v.X, line); err != nil {
			return err
		}
		t.emit(line, isa.Instr{Op: isa.INV})
		return nil

	case ast.Binary:
		if err := t.lowerExpr(v.X, line); err != nil {
			return err
		}
		if err := t.lowerExpr(v.Y, line); err != nil {
			return err
		}
		op, err := binOpcode(v.Op)
		if err != nil {
			return err
		}
		t.emit(line, isa.Instr{Op: op})
		t.depth--
		return nil

	case ast.Call:
		return t.lowerCall(v, line)

	case ast.ConstructorCall:
		for _, arg := range v.Args {
			if err := t.lowerExpr(arg, line); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("translate: line %d: cannot lower expression %T", line, e)
	}
}

func binOpcode(op ast.BinOp) (isa.Op, error) {
	switch op {
	case ast.OpAdd:
		return isa.ADD, nil
	case ast.OpSub:
		return isa.SUB, nil
	case ast.OpMul:
		return isa.MUL, nil
	case ast.OpDiv:
		return isa.DIV, nil
	case ast.OpLess:
		return isa.LESS, nil
	default:
		return 0, fmt.Errorf("translate: unknown binary operator %q", op)
	}
}

// lowerIndexLoad lowers a[k] (literal k: static address, constant-rel
// LOADs) or a[j] (identifier j: address computed at runtime, DLOAD) per
// spec §4.3.
func (t *translator) lowerIndexLoad(v ast.IndexExpr, line int) error {
	vi, ok := t.lookup(v.Name)
	if !ok {
		return fmt.Errorf("translate: line %d: undefined variable %q", line, v.Name)
	}
	at, ok := vi.typ.(ast.ArrayType)
	if !ok {
		return fmt.Errorf("translate: line %d: %q is not an array", line, v.Name)
	}
	eltFootprint, err := t.fc.Footprint(at.Elem)
	if err != nil {
		return err
	}

	switch idx := v.Index.(type) {
	case ast.IntLit:
		elemBase := vi.base + int(idx.Value)*eltFootprint
		t.emitLoadVar(line, varInfo{base: elemBase, footprint: eltFootprint})
		return nil

	case ast.Ident:
		jVi, ok := t.lookup(idx.Name)
		if !ok {
			return fmt.Errorf("translate: line %d: undefined variable %q", line, idx.Name)
		}
		c := t.depth - vi.base
		for i := 0; i < eltFootprint; i++ {
			t.emit(line, isa.Instr{Op: isa.PUSH, Arg: int32(c)})
			t.depth++
			jRel := t.depth - jVi.base
			t.emit(line, isa.Instr{Op: isa.LOAD, Arg: int32(jRel)})
			t.depth++
			t.emit(line, isa.Instr{Op: isa.PUSH, Arg: int32(eltFootprint)})
			t.depth++
			t.emit(line, isa.Instr{Op: isa.MUL})
			t.depth--
			t.emit(line, isa.Instr{Op: isa.SUB})
			t.depth--
			t.emit(line, isa.Instr{Op: isa.DLOAD})
		}
		return nil

	default:
		return fmt.Errorf("translate: line %d: array index must be a literal or identifier", line)
	}
}

// lowerIndexStore mirrors lowerIndexLoad for `a[k] = expr` / `a[j] = expr`,
// consuming the already-lowered RHS value from the top of the stack.
func (t *translator) lowerIndexStore(v *ast.AssignIndex, depthBeforeRHS int) error {
	line := v.Line()
	vi, ok := t.lookup(v.Name)
	if !ok {
		return fmt.Errorf("translate: line %d: undefined variable %q", line, v.Name)
	}
	at, ok := vi.typ.(ast.ArrayType)
	if !ok {
		return fmt.Errorf("translate: line %d: %q is not an array", line, v.Name)
	}
	eltFootprint, err := t.fc.Footprint(at.Elem)
	if err != nil {
		return err
	}

	switch idx := v.Index.(type) {
	case ast.IntLit:
		elemBase := vi.base + int(idx.Value)*eltFootprint
		t.emitStoreVar(line, varInfo{base: elemBase, footprint: eltFootprint}, depthBeforeRHS)
		return nil

	case ast.Ident:
		jVi, ok := t.lookup(idx.Name)
		if !ok {
			return fmt.Errorf("translate: line %d: undefined variable %q", line, idx.Name)
		}
		c := depthBeforeRHS - vi.base
		for i := 0; i < eltFootprint; i++ {
			t.emit(line, isa.Instr{Op: isa.PUSH, Arg: int32(c)})
			t.depth++
			jRel := t.depth - jVi.base
			t.emit(line, isa.Instr{Op: isa.LOAD, Arg: int32(jRel)})
			t.depth++
			t.emit(line, isa.Instr{Op: isa.PUSH, Arg: int32(eltFootprint)})
			t.depth++
			t.emit(line, isa.Instr{Op: isa.MUL})
			t.depth--
			t.emit(line, isa.Instr{Op: isa.SUB})
			t.depth--
			t.emit(line, isa.Instr{Op: isa.DSTORE})
			t.depth -= 2
		}
		return nil

	default:
		return fmt.Errorf("translate: line %d: array index must be a literal or identifier", line)
	}
}

// lowerCall emits a function call per spec §4.2/§4.3's calling convention.
// The symbolic depth is fast-forwarded to the post-return height (pre-call
// depth + footprint(return)) immediately after JUMPA: the callee's own
// prologue/epilogue instructions are not visible in the caller's code, so
// the caller's depth tracker must reflect their eventual net effect, not
// their transient peak during the call sequence.
func (t *translator) lowerCall(v ast.Call, line int) error {
	sig, ok := t.funcs[v.Callee]
	if !ok {
		return fmt.Errorf("translate: line %d: call to undeclared function %q", line, v.Callee)
	}

	depthBeforeCall := t.depth
	t.emit(line, isa.Instr{Op: isa.ALLOC, Arg: int32(sig.retFootprint)})
	t.depth += sig.retFootprint

	dumpIdx := t.emit(line, isa.Instr{Op: isa.DUMP, Arg: 0})
	t.depth++

	for _, arg := range v.Args {
		if err := t.lowerExpr(arg, line); err != nil {
			return err
		}
	}

	jumpIdx := t.emit(line, isa.Instr{Op: isa.JUMPA, Arg: 0})
	t.pending = append(t.pending, jumpAIFixup{instrIndex: jumpIdx, funcName: v.Callee})

	t.instrs[dumpIdx].Arg = int32(len(t.instrs) - dumpIdx)
	t.depth = depthBeforeCall + sig.retFootprint
	return nil
}
