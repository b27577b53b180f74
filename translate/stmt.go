package translate

import (
	"fmt"

	"sofl/ast"
	"sofl/isa"
)

func (t *translator) translateStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if err := t.translateStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// translateBlock lowers a nested block (If/While body) in its own scope,
// tearing every local it declares back down before returning (spec §4.3,
// P5).
func (t *translator) translateBlock(stmts []ast.Stmt) error {
	t.pushScope()
	if err := t.translateStmts(stmts); err != nil {
		return err
	}
	sc := t.topScope()
	for i := len(sc.order) - 1; i >= 0; i-- {
		vi := sc.vars[sc.order[i]]
		t.emit(0, isa.Instr{Op: isa.POP, Arg: int32(vi.footprint)})
		t.depth -= vi.footprint
	}
	t.popScope()
	return nil
}

func (t *translator) translateStmt(s ast.Stmt) error {
	switch v := s.(type) {
	case *ast.VarDecl:
		fp, err := t.fc.Footprint(v.Type)
		if err != nil {
			return err
		}
		base := t.depth + 1
		idx := t.emit(v.Line(), isa.Instr{Op: isa.ALLOC, Arg: int32(fp)})
		t.depth += fp
		t.allocs[idx] = isa.AllocRecord{Name: v.Name, Footprint: fp}
		t.topScope().define(v.Name, varInfo{base: base, footprint: fp, typ: v.Type})
		return nil

	case *ast.VarDeclInit:
		typ := v.Type
		if typ == nil {
			inferred, err := t.inferType(v.Init)
			if err != nil {
				return fmt.Errorf("translate: line %d: %w", v.Line(), err)
			}
			typ = inferred
		}
		fp, err := t.fc.Footprint(typ)
		if err != nil {
			return err
		}
		base := t.depth + 1
		if err := t.lowerExpr(v.Init, v.Line()); err != nil {
			return err
		}
		t.topScope().define(v.Name, varInfo{base: base, footprint: fp, typ: typ})
		return nil

	case *ast.AssignIdent:
		vi, ok := t.lookup(v.Name)
		if !ok {
			return fmt.Errorf("translate: line %d: undefined variable %q", v.Line(), v.Name)
		}
		depthBefore := t.depth
		if err := t.lowerExpr(v.Value, v.Line()); err != nil {
			return err
		}
		t.emitStoreVar(v.Line(), vi, depthBefore)
		return nil

	case *ast.AssignIndex:
		depthBefore := t.depth
		if err := t.lowerExpr(v.Value, v.Line()); err != nil {
			return err
		}
		return t.lowerIndexStore(v, depthBefore)

	case *ast.If:
		if err := t.lowerExpr(v.Cond, v.Line()); err != nil {
			return err
		}
		t.depth--
		jumpIdx := t.emit(v.Line(), isa.Instr{Op: isa.JUMP0, Arg: 0})
		if err := t.translateBlock(v.Body); err != nil {
			return err
		}
		t.instrs[jumpIdx].Arg = int32(len(t.instrs) - jumpIdx)
		return nil

	case *ast.While:
		condStart := len(t.instrs)
		if err := t.lowerExpr(v.Cond, v.Line()); err != nil {
			return err
		}
		t.depth--
		jumpIdx := t.emit(v.Line(), isa.Instr{Op: isa.JUMP0, Arg: 0})
		if err := t.translateBlock(v.Body); err != nil {
			return err
		}
		t.emit(v.Line(), isa.Instr{Op: isa.JUMP, Arg: int32(condStart - len(t.instrs))})
		t.instrs[jumpIdx].Arg = int32(len(t.instrs) - jumpIdx)
		return nil

	case *ast.Abort:
		t.emit(v.Line(), isa.Instr{Op: isa.CRASH})
		return nil

	default:
		return fmt.Errorf("translate: line %d: unknown statement type %T", s.Line(), s)
	}
}
