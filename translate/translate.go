// Package translate walks a typed ast.Program and emits a flat isa.Program:
// the stack-machine instruction list, a per-instruction source-line map and
// a per-instruction variable-allocation map for the debugger (spec §4.2-4.3,
// §4.8). It is the compiler back end — the largest and most spec-governed
// piece of this system — and is organized the way gvm/vm/compile.go
// organizes its own single-pass emit-as-you-walk compiler: one mutable
// compiler struct, one symbol table, symbolic jumps patched after the walk
// rather than computed ahead of time.
package translate

import (
	"fmt"

	"sofl/ast"
	"sofl/isa"
)

// varInfo locates a variable's words on the operand stack: base is the
// absolute symbolic index (within the current function's own frame
// coordinate system — see translateMain/translateFunction) of its first,
// most-significant word.
type varInfo struct {
	base      int
	footprint int
	typ       ast.Type
}

type scope struct {
	order []string
	vars  map[string]varInfo
}

func newScope() *scope {
	return &scope{vars: make(map[string]varInfo)}
}

func (s *scope) define(name string, vi varInfo) {
	s.order = append(s.order, name)
	s.vars[name] = vi
}

type funcSig struct {
	fn              *ast.Function
	retFootprint    int
	paramFootprints []int
	totalParamsSize int
}

type jumpAIFixup struct {
	instrIndex int
	funcName   string
}

// translator is a single-use compiler instance: one call to Translate
// builds it, walks every function, and discards it.
type translator struct {
	fc    *ast.FootprintCache
	funcs map[string]*funcSig

	depth  int
	scopes []*scope

	instrs     []isa.Instr
	debugLines map[int]int
	allocs     map[int]isa.AllocRecord

	pending []jumpAIFixup
}

// Translate lowers a fully resolved (imports flattened, templates
// expanded) program into a stack-machine instruction list. prog must
// contain a function named "main".
func Translate(prog *ast.Program) (*isa.Program, error) {
	fc := ast.NewFootprintCache(prog.Classes)

	funcs := make(map[string]*funcSig, len(prog.Functions))
	var mainFn *ast.Function
	for _, fn := range prog.Functions {
		retFP, err := fc.Footprint(fn.Return)
		if err != nil {
			return nil, fmt.Errorf("translate: function %q: %w", fn.Name, err)
		}
		paramFPs := make([]int, len(fn.Params))
		total := 0
		for i, p := range fn.Params {
			pfp, err := fc.Footprint(p.Type)
			if err != nil {
				return nil, fmt.Errorf("translate: function %q param %q: %w", fn.Name, p.Name, err)
			}
			paramFPs[i] = pfp
			total += pfp
		}
		funcs[fn.Name] = &funcSig{fn: fn, retFootprint: retFP, paramFootprints: paramFPs, totalParamsSize: total}
		if fn.Name == "main" {
			mainFn = fn
		}
	}
	if mainFn == nil {
		return nil, fmt.Errorf("translate: program has no main function")
	}

	t := &translator{
		fc:         fc,
		funcs:      funcs,
		debugLines: make(map[int]int),
		allocs:     make(map[int]isa.AllocRecord),
	}

	functionStarts := map[string]int{"main": 0}
	if err := t.translateMain(mainFn); err != nil {
		return nil, err
	}
	for _, fn := range prog.Functions {
		if fn.Name == "main" {
			continue
		}
		functionStarts[fn.Name] = len(t.instrs)
		if err := t.translateFunction(funcs[fn.Name]); err != nil {
			return nil, err
		}
	}

	for _, fix := range t.pending {
		start, ok := functionStarts[fix.funcName]
		if !ok {
			return nil, fmt.Errorf("translate: call to undeclared function %q", fix.funcName)
		}
		t.instrs[fix.instrIndex].Arg = int32(start)
	}

	return &isa.Program{Instrs: t.instrs, DebugLines: t.debugLines, Allocs: t.allocs}, nil
}

func (t *translator) emit(line int, instr isa.Instr) int {
	idx := len(t.instrs)
	t.instrs = append(t.instrs, instr)
	if line > 0 {
		t.debugLines[idx] = line
	}
	return idx
}

func (t *translator) topScope() *scope { return t.scopes[len(t.scopes)-1] }

func (t *translator) pushScope() { t.scopes = append(t.scopes, newScope()) }
func (t *translator) popScope()  { t.scopes = t.scopes[:len(t.scopes)-1] }

func (t *translator) lookup(name string) (varInfo, bool) {
	for i := len(t.scopes) - 1; i >= 0; i-- {
		if vi, ok := t.scopes[i].vars[name]; ok {
			return vi, true
		}
	}
	return varInfo{}, false
}

// translateMain lowers the entry point. main has no caller, so unlike every
// other function it materializes its own result slot as an ordinary first
// local instead of receiving one from a caller's frame, and its epilogue
// leaves that slot on the stack (EXIT, not RETURN) rather than tearing it
// down — the program's answer is whatever is left when the machine halts.
func (t *translator) translateMain(fn *ast.Function) error {
	t.depth = -1
	t.scopes = nil
	t.pushScope()

	retFP, err := t.fc.Footprint(fn.Return)
	if err != nil {
		return err
	}
	resultBase := t.depth + 1
	t.emit(0, isa.Instr{Op: isa.ALLOC, Arg: int32(retFP)})
	t.depth += retFP
	t.topScope().define("result", varInfo{base: resultBase, footprint: retFP, typ: fn.Return})

	if err := t.translateStmts(fn.Body); err != nil {
		return err
	}

	// Tear down every local declared in main's body except the result slot,
	// which must remain as the final top-of-stack value.
	sc := t.topScope()
	for i := len(sc.order) - 1; i >= 0; i-- {
		name := sc.order[i]
		if name == "result" {
			continue
		}
		vi := sc.vars[name]
		t.emit(0, isa.Instr{Op: isa.POP, Arg: int32(vi.footprint)})
		t.depth -= vi.footprint
	}
	t.emit(0, isa.Instr{Op: isa.EXIT})
	t.popScope()
	return nil
}

// translateFunction lowers an ordinary (non-main) function. Its parameters
// and result slot already exist on the caller's stack by the calling
// convention (spec §4.2); the callee never allocates them.
func (t *translator) translateFunction(sig *funcSig) error {
	fn := sig.fn
	t.depth = sig.totalParamsSize - 1
	t.scopes = nil
	t.pushScope()

	t.topScope().define("result", varInfo{base: -1 - sig.retFootprint, footprint: sig.retFootprint, typ: fn.Return})

	base := 0
	for i, p := range fn.Params {
		t.topScope().define(p.Name, varInfo{base: base, footprint: sig.paramFootprints[i], typ: p.Type})
		base += sig.paramFootprints[i]
	}

	if err := t.translateStmts(fn.Body); err != nil {
		return err
	}

	sc := t.topScope()
	for i := len(sc.order) - 1; i >= 0; i-- {
		name := sc.order[i]
		if name == "result" {
			continue
		}
		vi := sc.vars[name]
		if _, isParam := paramIndex(fn, name); isParam {
			continue // params are freed below, after all locals
		}
		t.emit(0, isa.Instr{Op: isa.POP, Arg: int32(vi.footprint)})
		t.depth -= vi.footprint
	}
	for i := len(fn.Params) - 1; i >= 0; i-- {
		t.emit(0, isa.Instr{Op: isa.POP, Arg: int32(sig.paramFootprints[i])})
		t.depth -= sig.paramFootprints[i]
	}
	t.emit(0, isa.Instr{Op: isa.RETURN})
	t.popScope()
	return nil
}

func paramIndex(fn *ast.Function, name string) (int, bool) {
	for i, p := range fn.Params {
		if p.Name == name {
			return i, true
		}
	}
	return 0, false
}
