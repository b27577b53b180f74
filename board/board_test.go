package board

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

func mustBoard(t *testing.T, instrs []isa.Instr) *Board {
	t.Helper()
	encoded, err := isa.Encode(instrs)
	assert(t, err == nil, "Encode failed: %v", err)
	b, err := New(encoded.Code, 4096)
	assert(t, err == nil, "New failed: %v", err)
	return b
}

// TestBoardScenario1 runs spec's first worked scenario through the binary-
// encoded path and checks the board agrees with the abstract VM (spec
// §3.4's cross-backend invariant).
func TestBoardScenario1(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.ALLOC, Arg: 1},
		{Op: isa.PUSH, Arg: 54},
		{Op: isa.STORE, Arg: 0},
		{Op: isa.EXIT},
	}
	b := mustBoard(t, instrs)
	assert(t, b.Run(0) == nil, "Run failed")
	top, err := b.TopOfStack()
	assert(t, err == nil, "TopOfStack failed: %v", err)
	assert(t, top.Int64() == 54, "top = %d, want 54", top.Int64())
}

func TestBoardArithmetic(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.PUSH, Arg: 3},
		{Op: isa.PUSH, Arg: 4},
		{Op: isa.ADD},
		{Op: isa.PUSH, Arg: 2},
		{Op: isa.MUL},
		{Op: isa.EXIT},
	}
	b := mustBoard(t, instrs)
	assert(t, b.Run(0) == nil, "Run failed")
	top, err := b.TopOfStack()
	assert(t, err == nil, "TopOfStack failed: %v", err)
	assert(t, top.Int64() == 14, "top = %d, want 14", top.Int64())
}

func TestBoardNegativeImmediateRoundTrips(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.PUSH, Arg: -7},
		{Op: isa.PUSH, Arg: 10},
		{Op: isa.ADD},
		{Op: isa.EXIT},
	}
	b := mustBoard(t, instrs)
	assert(t, b.Run(0) == nil, "Run failed")
	top, err := b.TopOfStack()
	assert(t, err == nil, "TopOfStack failed: %v", err)
	assert(t, top.Int64() == 3, "top = %d, want 3", top.Int64())
}

func TestBoardDivByZeroTraps(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.PUSH, Arg: 1},
		{Op: isa.PUSH, Arg: 0},
		{Op: isa.DIV},
		{Op: isa.EXIT},
	}
	b := mustBoard(t, instrs)
	err := b.Run(0)
	assert(t, err == ErrDivByZero, "err = %v, want ErrDivByZero", err)
}

func TestBoardCrashAborts(t *testing.T) {
	b := mustBoard(t, []isa.Instr{{Op: isa.CRASH}})
	err := b.Run(0)
	assert(t, err == ErrCrash, "err = %v, want ErrCrash", err)
}

// TestBoardFunctionCall mirrors vm.TestRunFunctionCall's ALLOC/DUMP/JUMPA/
// RETURN program on the byte-encoded, bit-accurate execution path.
func TestBoardFunctionCall(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.ALLOC, Arg: 1},
		{Op: isa.DUMP, Arg: 3},
		{Op: isa.PUSH, Arg: 21},
		{Op: isa.JUMPA, Arg: 5},
		{Op: isa.EXIT},
		{Op: isa.LOAD, Arg: 0},
		{Op: isa.LOAD, Arg: 1},
		{Op: isa.ADD},
		{Op: isa.STORE, Arg: 2},
		{Op: isa.POP, Arg: 1},
		{Op: isa.RETURN},
	}
	b := mustBoard(t, instrs)
	assert(t, b.Run(0) == nil, "Run failed")
	top, err := b.TopOfStack()
	assert(t, err == nil, "TopOfStack failed: %v", err)
	assert(t, top.Int64() == 42, "result = %d, want 42", top.Int64())
}

func TestBoardStepLimitStopsRunaway(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.PUSH, Arg: 1},
		{Op: isa.JUMP, Arg: -1},
	}
	b := mustBoard(t, instrs)
	err := b.Run(1000)
	assert(t, err == ErrStepLimit, "err = %v, want ErrStepLimit", err)
}
