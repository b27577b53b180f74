package board

import (
	"fmt"

	"sofl/bitvec"
	"sofl/isa"
)

// Step fetches the opcode byte at ip, reads its immediate bytes into the
// instruction register, and dispatches one micro-operation (spec §4.5).
// Every ALU effect below is built from bitvec's per-bit primitives so the
// board agrees with the vm package's native-int arithmetic only because
// both implement the same closed opcode table, not because they share code
// (spec §3.4's invariant is a test-suite obligation, not a code-sharing
// one — the CPU's gate-level semantics and the abstract VM's native-int
// semantics are necessarily two separate implementations).
func (b *Board) Step() error {
	opByte, err := b.readByte(b.ipAddr())
	if err != nil {
		return err
	}
	op, ok := isa.OpFromByte(opByte)
	if !ok {
		return ErrUnknownOpcode
	}
	width := isa.Catalog[op].Imm.Width()
	immBytes := make([]byte, width)
	for i := 0; i < width; i++ {
		by, err := b.readByte(b.ipAddr() + uint32(1+i))
		if err != nil {
			return err
		}
		immBytes[i] = by
	}
	imm := decodeImmediate(op, immBytes)
	b.IR = bitvec.FromUint64(uint64(opByte)<<32|imm.Uint64()&0xFFFFFFFF, 64)

	instrSize := uint32(1 + width)
	curIP := b.ipAddr()
	nextIP := curIP + instrSize

	switch op {
	case isa.ADD, isa.SUB, isa.MUL, isa.DIV:
		bv, err := b.popWord()
		if err != nil {
			return err
		}
		av, err := b.popWord()
		if err != nil {
			return err
		}
		var r bitvec.Bits
		switch op {
		case isa.ADD:
			r = bitvec.Add(av, bv)
		case isa.SUB:
			r = bitvec.Sub(av, bv)
		case isa.MUL:
			r = bitvec.Mul(av, bv)
		case isa.DIV:
			r, err = bitvec.Div(av, bv)
			if err != nil {
				return ErrDivByZero
			}
		}
		if err := b.pushWord(r); err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.INV:
		av, err := b.popWord()
		if err != nil {
			return err
		}
		if av.Uint64() == 0 {
			err = b.pushWord(num32(1))
		} else {
			err = b.pushWord(num32(0))
		}
		if err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.LESS:
		bv, err := b.popWord()
		if err != nil {
			return err
		}
		av, err := b.popWord()
		if err != nil {
			return err
		}
		var r bitvec.Bits
		if bitvec.Less(av, bv) {
			r = num32(1)
		} else {
			r = num32(0)
		}
		if err := b.pushWord(r); err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.PUSH:
		if err := b.pushWord(imm); err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.POP:
		count := imm.Uint64()
		for i := uint64(0); i < count; i++ {
			if _, err := b.popWord(); err != nil {
				return err
			}
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.STORE:
		v, err := b.popWord()
		if err != nil {
			return err
		}
		addr, err := b.wordAddr(int32(imm.Int64()))
		if err != nil {
			return err
		}
		if err := b.write32(addr, v); err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.DSTORE:
		rel, err := b.popWord()
		if err != nil {
			return err
		}
		v, err := b.popWord()
		if err != nil {
			return err
		}
		addr, err := b.wordAddr(int32(rel.Int64()))
		if err != nil {
			return err
		}
		if err := b.write32(addr, v); err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.LOAD:
		addr, err := b.wordAddr(int32(imm.Int64()))
		if err != nil {
			return err
		}
		v, err := b.read32(addr)
		if err != nil {
			return err
		}
		if err := b.pushWord(v); err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.DLOAD:
		rel, err := b.popWord()
		if err != nil {
			return err
		}
		addr, err := b.wordAddr(int32(rel.Int64()))
		if err != nil {
			return err
		}
		v, err := b.read32(addr)
		if err != nil {
			return err
		}
		if err := b.pushWord(v); err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.JUMP:
		b.IP = bitvec.FromUint64(uint64(int64(curIP)+imm.Int64()), 32)

	case isa.JUMP0:
		v, err := b.popWord()
		if err != nil {
			return err
		}
		if v.Uint64() == 0 {
			b.IP = bitvec.FromUint64(uint64(int64(curIP)+imm.Int64()), 32)
		} else {
			b.IP = bitvec.FromUint64(uint64(nextIP), 32)
		}

	case isa.JUMPA:
		b.IP = bitvec.FromUint64(imm.Uint64()&0xFFFFFFFF, 32)

	case isa.DUMP:
		if err := b.pushWord(bitvec.FromUint64(uint64(int64(curIP)+imm.Int64()), 32)); err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.RETURN:
		v, err := b.popWord()
		if err != nil {
			return err
		}
		b.IP = bitvec.FromUint64(v.Uint64()&0xFFFFFFFF, 32)

	case isa.ALLOC:
		n := imm.Uint64()
		for i := uint64(0); i < n; i++ {
			if err := b.pushWord(num32(0)); err != nil {
				return err
			}
		}
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.CRASH:
		return ErrCrash

	case isa.NOOP:
		b.IP = bitvec.FromUint64(uint64(nextIP), 32)

	case isa.EXIT:
		b.Halted = true

	default:
		return fmt.Errorf("board: unhandled opcode %s", op)
	}
	b.Steps++
	return nil
}

// Run drives the board to completion (EXIT) or a trap, applying at most
// maxSteps cycles when maxSteps > 0.
func (b *Board) Run(maxSteps int) error {
	steps := 0
	for !b.Halted {
		if maxSteps > 0 && steps >= maxSteps {
			return ErrStepLimit
		}
		if err := b.Step(); err != nil {
			return err
		}
		steps++
	}
	return nil
}

// TopOfStack reads the word currently on top of the operand stack, the
// board's analogue of the abstract VM's final Stack[top] (spec §8's
// worked scenarios all check this value).
func (b *Board) TopOfStack() (bitvec.Bits, error) {
	sp := b.spAddr()
	if sp < wordBytes {
		return bitvec.Bits{}, ErrSegfault
	}
	return b.read32(sp - wordBytes)
}

// StackWords reads every word currently on the operand stack, base first,
// the board's analogue of the abstract VM's State.Stack slice (spec §6:
// the executor reads back the whole remaining stack at EXIT, not just its
// top word).
func (b *Board) StackWords() ([]int32, error) {
	sp := b.spAddr()
	n := (sp - b.stackBase) / wordBytes
	words := make([]int32, 0, n)
	for addr := b.stackBase; addr < sp; addr += wordBytes {
		v, err := b.read32(addr)
		if err != nil {
			return nil, err
		}
		words = append(words, int32(v.Int64()))
	}
	return words, nil
}
