package vm

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

// TestRunScenario1 pins spec's first worked scenario: `main() { result =
// 54 }` translates to ALLOC 1; PUSH 54; STORE rel; EXIT, and running it
// leaves 54 on top of the stack.
func TestRunScenario1(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.ALLOC, Arg: 1},
		{Op: isa.PUSH, Arg: 54},
		{Op: isa.STORE, Arg: 0},
		{Op: isa.EXIT},
	}
	st, err := Run(InstrListFetcher{Instrs: instrs}, 0)
	assert(t, err == nil, "Run failed: %v", err)
	assert(t, len(st.Stack) == 1, "final stack = %v, want 1 word", st.Stack)
	assert(t, st.Stack[0] == 54, "final stack top = %d, want 54", st.Stack[0])
}

func TestRunArithmetic(t *testing.T) {
	// (3 + 4) * 2 = 14
	instrs := []isa.Instr{
		{Op: isa.PUSH, Arg: 3},
		{Op: isa.PUSH, Arg: 4},
		{Op: isa.ADD},
		{Op: isa.PUSH, Arg: 2},
		{Op: isa.MUL},
		{Op: isa.EXIT},
	}
	st, err := Run(InstrListFetcher{Instrs: instrs}, 0)
	assert(t, err == nil, "Run failed: %v", err)
	assert(t, st.Stack[len(st.Stack)-1] == 14, "top = %d, want 14", st.Stack[len(st.Stack)-1])
}

func TestRunDivByZeroTraps(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.PUSH, Arg: 1},
		{Op: isa.PUSH, Arg: 0},
		{Op: isa.DIV},
		{Op: isa.EXIT},
	}
	_, err := Run(InstrListFetcher{Instrs: instrs}, 0)
	assert(t, err == ErrDivByZero, "err = %v, want ErrDivByZero", err)
}

func TestRunCrashAborts(t *testing.T) {
	instrs := []isa.Instr{{Op: isa.CRASH}}
	_, err := Run(InstrListFetcher{Instrs: instrs}, 0)
	assert(t, err == ErrCrash, "err = %v, want ErrCrash", err)
}

// TestRunWhileLoop counts a value on top of the stack down to zero using
// LOAD 0 as a non-popping peek, JUMP0 to exit, and a negative-displacement
// JUMP to close the loop — pinning the back-edge patching translate/stmt.go
// performs for ast.While.
func TestRunWhileLoop(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.PUSH, Arg: 3},  // 0
		{Op: isa.LOAD, Arg: 0},  // 1 (condStart): peek current value
		{Op: isa.JUMP0, Arg: 4}, // 2: exit to 6 when the peeked value is 0
		{Op: isa.PUSH, Arg: 1},  // 3
		{Op: isa.SUB},           // 4: top -= 1
		{Op: isa.JUMP, Arg: -4}, // 5: back to 1
		{Op: isa.EXIT},          // 6
	}
	st, err := Run(InstrListFetcher{Instrs: instrs}, 1000)
	assert(t, err == nil, "Run failed: %v", err)
	assert(t, len(st.Stack) == 1, "final stack = %v, want 1 word", st.Stack)
	assert(t, st.Stack[0] == 0, "final value = %d, want 0", st.Stack[0])
}

// TestRunFunctionCall exercises ALLOC/DUMP/JUMPA/RETURN end to end: main
// calls double(21), which computes n+n into its result slot and returns.
func TestRunFunctionCall(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.ALLOC, Arg: 1}, // 0: result slot
		{Op: isa.DUMP, Arg: 3},  // 1: return addr = 1+3 = 4
		{Op: isa.PUSH, Arg: 21}, // 2: argument
		{Op: isa.JUMPA, Arg: 5}, // 3: call double
		{Op: isa.EXIT},          // 4: resumes here with result on top
		// double:
		{Op: isa.LOAD, Arg: 0},  // 5: push n
		{Op: isa.LOAD, Arg: 1},  // 6: push n again
		{Op: isa.ADD},           // 7
		{Op: isa.STORE, Arg: 2}, // 8: write into result slot
		{Op: isa.POP, Arg: 1},   // 9: free param n
		{Op: isa.RETURN},        // 10
	}
	st, err := Run(InstrListFetcher{Instrs: instrs}, 0)
	assert(t, err == nil, "Run failed: %v", err)
	assert(t, len(st.Stack) == 1, "final stack = %v, want 1 word", st.Stack)
	assert(t, st.Stack[0] == 42, "result = %d, want 42", st.Stack[0])
}

func TestRunBinaryFetcherMatchesInstrList(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.PUSH, Arg: 10},
		{Op: isa.PUSH, Arg: 32},
		{Op: isa.ADD},
		{Op: isa.EXIT},
	}
	want, err := Run(InstrListFetcher{Instrs: instrs}, 0)
	assert(t, err == nil, "instruction-list run failed: %v", err)

	encoded, err := isa.Encode(instrs)
	assert(t, err == nil, "Encode failed: %v", err)

	got, err := Run(BinaryFetcher{Code: encoded.Code}, 0)
	assert(t, err == nil, "binary run failed: %v", err)
	assert(t, len(got.Stack) == len(want.Stack), "binary stack len = %d, want %d", len(got.Stack), len(want.Stack))
	assert(t, got.Stack[0] == want.Stack[0], "binary result = %d, want %d", got.Stack[0], want.Stack[0])
}

func TestRunStepLimitStopsRunaway(t *testing.T) {
	instrs := []isa.Instr{
		{Op: isa.PUSH, Arg: 1}, // 0
		{Op: isa.JUMP, Arg: -1}, // 1: infinite loop
	}
	_, err := Run(InstrListFetcher{Instrs: instrs}, 100)
	assert(t, err == ErrStepLimit, "err = %v, want ErrStepLimit", err)
}
