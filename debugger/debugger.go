// Package debugger replays a translated program instruction by
// instruction, tracking which source-level variables are live on the
// operand stack from the translator's per-ALLOC allocation records (spec
// §4.8). Its interactive command loop (next/run/break) is adapted from
// gvm/vm/exec.go's ExecProgramDebugMode REPL, generalized from gvm's
// register-machine state to this package's operand-stack state.
package debugger

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"sofl/isa"
	"sofl/vm"
)

// LiveVar is one variable currently allocated on the operand stack: Base
// is the stack length at which it was first pushed.
type LiveVar struct {
	Name      string
	Base      int
	Footprint int
}

// Session drives a translated program one instruction at a time. This is
// a derived view over the program's execution — it never feeds back into
// translation or execution itself (spec §4.8: "the compiler never
// consults it").
type Session struct {
	Prog    *isa.Program
	Fetcher vm.Fetcher
	State   *vm.State
	Live    []LiveVar
}

// NewSession builds a debugging session over prog's own translated
// instruction list.
func NewSession(prog *isa.Program) *Session {
	return &Session{
		Prog:    prog,
		Fetcher: vm.InstrListFetcher{Instrs: prog.Instrs},
		State:   vm.NewState(),
	}
}

// Step executes exactly one instruction, then updates the live-variable
// stack: a record is pushed the moment its ALLOC instruction retires, and
// popped once the stack has shrunk back to or below its base (spec §4.8).
func (s *Session) Step() (isa.Instr, error) {
	ip := s.State.IP
	instr, err := vm.Step(s.Fetcher, s.State)
	if err != nil {
		return instr, err
	}
	if rec, ok := s.Prog.Allocs[ip]; ok {
		s.Live = append(s.Live, LiveVar{
			Name:      rec.Name,
			Base:      len(s.State.Stack) - rec.Footprint,
			Footprint: rec.Footprint,
		})
	}
	for len(s.Live) > 0 && len(s.State.Stack) <= s.Live[len(s.Live)-1].Base {
		s.Live = s.Live[:len(s.Live)-1]
	}
	return instr, nil
}

// CurrentLine reports the source line the instruction at the session's
// current ip came from, if the program carries debug info for it.
func (s *Session) CurrentLine() (int, bool) {
	line, ok := s.Prog.DebugLines[s.State.IP]
	return line, ok
}

// Value reads a live variable's words off the stack in declared order
// (most-significant word first, mirroring how the translator loads it).
func (s *Session) Value(v LiveVar) []int32 {
	return append([]int32(nil), s.State.Stack[v.Base:v.Base+v.Footprint]...)
}

func (s *Session) printState(out io.Writer) {
	if line, ok := s.CurrentLine(); ok {
		fmt.Fprintf(out, "  next instruction> ip=%d line=%d\n", s.State.IP, line)
	} else {
		fmt.Fprintf(out, "  next instruction> ip=%d\n", s.State.IP)
	}
	fmt.Fprintln(out, "  stack>", s.State.Stack)
	s.printVars(out)
}

func (s *Session) printVars(out io.Writer) {
	if len(s.Live) == 0 {
		return
	}
	fmt.Fprint(out, "  vars>")
	for _, v := range s.Live {
		fmt.Fprintf(out, " %s=%v", v.Name, s.Value(v))
	}
	fmt.Fprintln(out)
}

// RunInteractive drives the session from an input command stream: "n"/
// "next" single-steps, "r"/"run" free-runs to completion or a breakpoint,
// "b <line>"/"break <line>" toggles a source-line breakpoint, "vars"
// prints live variables, "q"/"quit" stops the session early.
func (s *Session) RunInteractive(in io.Reader, out io.Writer) error {
	fmt.Fprint(out, "Commands:\n\tn or next: execute next instruction\n\tr or run: run program\n\tb or break <line>: toggle breakpoint\n\tvars: show live variables\n\tq or quit: stop\n\n")
	s.printState(out)

	reader := bufio.NewReader(in)
	breakLines := make(map[int]struct{})
	waitForInput := true
	lastBreakLine := -1

	for {
		if waitForInput {
			fmt.Fprint(out, "\n->")
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return nil
			}
			cmd := strings.ToLower(strings.TrimSpace(line))
			switch {
			case cmd == "q" || cmd == "quit":
				return nil
			case cmd == "vars":
				s.printVars(out)
				continue
			case cmd == "r" || cmd == "run":
				waitForInput = false
				continue
			case cmd == "n" || cmd == "next":
				// fall through to the step below
			case strings.HasPrefix(cmd, "b"):
				arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(cmd, "break"), "b"))
				n, err := strconv.Atoi(arg)
				if err != nil {
					fmt.Fprintln(out, "unknown line number:", err)
					continue
				}
				if _, ok := breakLines[n]; ok {
					delete(breakLines, n)
				} else {
					breakLines[n] = struct{}{}
				}
				continue
			default:
				continue
			}
		} else if line, ok := s.CurrentLine(); ok {
			if _, hit := breakLines[line]; hit && lastBreakLine != line {
				fmt.Fprintln(out, "breakpoint")
				s.printState(out)
				waitForInput = true
				lastBreakLine = line
				continue
			}
		}

		if line, ok := s.CurrentLine(); !ok || line != lastBreakLine {
			lastBreakLine = -1
		}
		if _, err := s.Step(); err != nil {
			if err == vm.ErrProgramFinished {
				return nil
			}
			fmt.Fprintln(out, "error:", err)
			return err
		}
		if waitForInput {
			s.printState(out)
		}
		if s.State.Halted {
			fmt.Fprintln(out, "program halted")
			s.printState(out)
			return nil
		}
	}
}
