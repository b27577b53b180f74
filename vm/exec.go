package vm

import (
	"fmt"

	"sofl/isa"
)

// apply executes one instruction's effect on st (spec §3.3's opcode
// table), given curIP (the instruction's own fetch position, needed by
// relative jumps) and nextIP (where control falls through to absent a
// branch). An opcode with no case here falls to the default branch and is
// reported as a runtime error, not executed as a silent no-op.
func apply(st *State, instr isa.Instr, curIP, nextIP int) error {
	switch instr.Op {
	case isa.ADD, isa.SUB, isa.MUL, isa.DIV:
		b, err := st.pop()
		if err != nil {
			return err
		}
		a, err := st.pop()
		if err != nil {
			return err
		}
		var r int32
		switch instr.Op {
		case isa.ADD:
			r = a + b
		case isa.SUB:
			r = a - b
		case isa.MUL:
			r = a * b
		case isa.DIV:
			if b == 0 {
				return ErrDivByZero
			}
			r = a / b
		}
		st.push(r)
		st.IP = nextIP

	case isa.INV:
		a, err := st.pop()
		if err != nil {
			return err
		}
		if a == 0 {
			st.push(1)
		} else {
			st.push(0)
		}
		st.IP = nextIP

	case isa.LESS:
		b, err := st.pop()
		if err != nil {
			return err
		}
		a, err := st.pop()
		if err != nil {
			return err
		}
		if a < b {
			st.push(1)
		} else {
			st.push(0)
		}
		st.IP = nextIP

	case isa.PUSH:
		st.push(instr.Arg)
		st.IP = nextIP

	case isa.POP:
		for i := int32(0); i < instr.Arg; i++ {
			if _, err := st.pop(); err != nil {
				return err
			}
		}
		st.IP = nextIP

	case isa.STORE:
		v, err := st.pop()
		if err != nil {
			return err
		}
		idx, err := st.addr(instr.Arg)
		if err != nil {
			return err
		}
		st.Stack[idx] = v
		st.IP = nextIP

	case isa.DSTORE:
		rel, err := st.pop()
		if err != nil {
			return err
		}
		v, err := st.pop()
		if err != nil {
			return err
		}
		idx, err := st.addr(rel)
		if err != nil {
			return err
		}
		st.Stack[idx] = v
		st.IP = nextIP

	case isa.LOAD:
		idx, err := st.addr(instr.Arg)
		if err != nil {
			return err
		}
		st.push(st.Stack[idx])
		st.IP = nextIP

	case isa.DLOAD:
		rel, err := st.pop()
		if err != nil {
			return err
		}
		idx, err := st.addr(rel)
		if err != nil {
			return err
		}
		st.push(st.Stack[idx])
		st.IP = nextIP

	case isa.JUMP:
		st.IP = curIP + int(instr.Arg)

	case isa.JUMP0:
		v, err := st.pop()
		if err != nil {
			return err
		}
		if v == 0 {
			st.IP = curIP + int(instr.Arg)
		} else {
			st.IP = nextIP
		}

	case isa.JUMPA:
		st.IP = int(uint32(instr.Arg))

	case isa.DUMP:
		st.push(int32(curIP + int(instr.Arg)))
		st.IP = nextIP

	case isa.RETURN:
		v, err := st.pop()
		if err != nil {
			return err
		}
		st.IP = int(v)

	case isa.ALLOC:
		n := int(uint32(instr.Arg) & 0xFFFF)
		for i := 0; i < n; i++ {
			st.push(0)
		}
		st.IP = nextIP

	case isa.CRASH:
		return ErrCrash

	case isa.NOOP:
		st.IP = nextIP

	case isa.EXIT:
		st.Halted = true

	default:
		return fmt.Errorf("vm: unhandled opcode %s", instr.Op)
	}
	return nil
}

// Run drives f to completion from ip 0, applying each fetched instruction
// to a fresh State until EXIT halts it or an error traps. maxSteps<=0 means
// unbounded; otherwise Run returns ErrStepLimit once that many instructions
// have retired, guarding the CLI against non-terminating programs.
func Run(f Fetcher, maxSteps int) (*State, error) {
	st := NewState()
	steps := 0
	for !st.Halted {
		if maxSteps > 0 && steps >= maxSteps {
			return st, ErrStepLimit
		}
		instr, nextIP, err := f.Fetch(st.IP)
		if err != nil {
			return st, err
		}
		if err := apply(st, instr, st.IP, nextIP); err != nil {
			return st, err
		}
		steps++
		st.Steps++
	}
	return st, nil
}

// Step applies exactly one instruction fetched from f, for interactive
// single-stepping (spec §4.8's debugger). It returns the instruction that
// was fetched and any error from fetching or applying it; ErrProgramFinished
// means ip has run past the end of the program.
func Step(f Fetcher, st *State) (isa.Instr, error) {
	instr, nextIP, err := f.Fetch(st.IP)
	if err != nil {
		return isa.Instr{}, err
	}
	if err := apply(st, instr, st.IP, nextIP); err != nil {
		return instr, err
	}
	st.Steps++
	return instr, nil
}
