package debugger

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"sofl/isa"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func scenario1Program() *isa.Program {
	return &isa.Program{
		Instrs: []isa.Instr{
			{Op: isa.ALLOC, Arg: 1},
			{Op: isa.PUSH, Arg: 54},
			{Op: isa.STORE, Arg: 0},
			{Op: isa.EXIT},
		},
		DebugLines: map[int]int{0: 1, 1: 1, 2: 1, 3: 1},
		Allocs:     map[int]isa.AllocRecord{0: {Name: "result", Footprint: 1}},
	}
}

func TestSessionTracksLiveVariable(t *testing.T) {
	s := NewSession(scenario1Program())

	_, err := s.Step() // ALLOC: result becomes live
	assert(t, err == nil, "Step failed: %v", err)
	assert(t, len(s.Live) == 1, "got %d live vars, want 1", len(s.Live))
	assert(t, s.Live[0].Name == "result", "live var name = %q", s.Live[0].Name)

	_, err = s.Step() // PUSH 54
	assert(t, err == nil, "Step failed: %v", err)
	_, err = s.Step() // STORE
	assert(t, err == nil, "Step failed: %v", err)

	assert(t, len(s.Live) == 1, "result should still be live across STORE")
	assert(t, s.Value(s.Live[0])[0] == 54, "result value = %v, want [54]", s.Value(s.Live[0]))
}

func TestRunInteractiveStepsToHalt(t *testing.T) {
	s := NewSession(scenario1Program())
	var out bytes.Buffer
	in := strings.NewReader("n\nn\nn\nn\n")
	err := s.RunInteractive(in, &out)
	assert(t, err == nil, "RunInteractive failed: %v", err)
	assert(t, s.State.Halted, "expected the session to reach EXIT")
	assert(t, strings.Contains(out.String(), "program halted"), "expected halt message in output")
}

func TestRunInteractiveRunCommandFreeRuns(t *testing.T) {
	s := NewSession(scenario1Program())
	var out bytes.Buffer
	in := strings.NewReader("r\n")
	err := s.RunInteractive(in, &out)
	assert(t, err == nil, "RunInteractive failed: %v", err)
	assert(t, s.State.Halted, "expected the session to reach EXIT")
}
