package asmtext

import (
	"fmt"
	"testing"

	"sofl/isa"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func TestAssembleResolvesLabels(t *testing.T) {
	src := []string{
		"// loop sums down to zero",
		"loop:",
		"  PUSH 1   // decrement",
		"  SUB",
		"  DUMP 0",
		"  JUMP0 done",
		"  JUMP loop",
		"done:",
		"  RETURN",
	}

	instrs, err := Assemble(src)
	assert(t, err == nil, "Assemble failed: %v", err)
	assert(t, len(instrs) == 6, "got %d instructions, want 6", len(instrs))

	assert(t, instrs[0] == isa.Instr{Op: isa.PUSH, Arg: 1}, "instr 0 = %+v", instrs[0])
	assert(t, instrs[3] == isa.Instr{Op: isa.JUMP0, Arg: 2}, "JUMP0 target: got %+v", instrs[3])
	assert(t, instrs[4] == isa.Instr{Op: isa.JUMP, Arg: -4}, "JUMP target: got %+v", instrs[4])
}

func TestAssembleRejectsUnknownMnemonic(t *testing.T) {
	_, err := Assemble([]string{"FROB 1"})
	assert(t, err != nil, "expected error for unknown mnemonic")
}

func TestRoundTripAssembleDisassemble(t *testing.T) {
	prog := []isa.Instr{
		{Op: isa.PUSH, Arg: 3},
		{Op: isa.PUSH, Arg: 4},
		{Op: isa.ADD},
		{Op: isa.DUMP, Arg: 1},
		{Op: isa.RETURN},
	}

	text := Disassemble(prog)
	back, err := Assemble(text)
	assert(t, err == nil, "Assemble failed: %v", err)
	assert(t, len(back) == len(prog), "got %d instructions, want %d", len(back), len(prog))
	for i := range prog {
		assert(t, back[i] == prog[i], "instr %d: got %+v, want %+v", i, back[i], prog[i])
	}
}
