package isa

import (
	"errors"
	"fmt"
)

// ErrTruncated is returned when a byte image ends in the middle of an
// instruction.
var ErrTruncated = errors.New("isa: truncated instruction")

// instrByteSize is the encoded size, in bytes, of an instruction with the
// given opcode: one opcode byte plus its immediate's width (spec §4.4).
func instrByteSize(op Op) int {
	return 1 + Catalog[op].Imm.Width()
}

// encodeSignMagnitude packs a signed value into width bytes, most
// significant byte first, sign in the top bit of the first byte and the
// remaining bits holding the magnitude — sign-magnitude, not two's
// complement. This is the quirk spec §4.4/§9 calls out by name; both the
// encoder and the decoder below must mirror it exactly.
func encodeSignMagnitude(v int64, width int) []byte {
	neg := v < 0
	mag := v
	if neg {
		mag = -mag
	}

	totalBits := width * 8
	maxMagnitude := int64(1) << uint(totalBits-1)
	if mag >= maxMagnitude {
		mag = maxMagnitude - 1
	}

	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(mag & 0xFF)
		mag >>= 8
	}
	if neg {
		out[0] |= 0x80
	}
	return out
}

func decodeSignMagnitude(b []byte) int64 {
	neg := b[0]&0x80 != 0
	var mag int64
	mag = int64(b[0] & 0x7F)
	for i := 1; i < len(b); i++ {
		mag = (mag << 8) | int64(b[i])
	}
	if neg {
		return -mag
	}
	return mag
}

func encodeUnsigned(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v & 0xFF)
		v >>= 8
	}
	return out
}

func decodeUnsigned(b []byte) uint64 {
	var v uint64
	for _, by := range b {
		v = (v << 8) | uint64(by)
	}
	return v
}

// encodeImmediate appends arg's encoded bytes for opcode op's immediate
// kind.
func encodeImmediate(op Op, arg int32) []byte {
	switch Catalog[op].Imm {
	case ImmNone:
		return nil
	case ImmI32:
		return encodeSignMagnitude(int64(arg), 4)
	case ImmI16:
		return encodeSignMagnitude(int64(arg), 2)
	case ImmU16:
		return encodeUnsigned(uint64(uint32(arg)), 2)
	case ImmU8:
		return encodeUnsigned(uint64(uint32(arg)), 1)
	default:
		return nil
	}
}

func decodeImmediate(op Op, b []byte) int32 {
	switch Catalog[op].Imm {
	case ImmNone:
		return 0
	case ImmI32, ImmI16:
		return int32(decodeSignMagnitude(b))
	case ImmU16, ImmU8:
		return int32(decodeUnsigned(b))
	default:
		return 0
	}
}

// Encoded is the result of Encode: the byte image, the prefix-sum
// byte-offset of each instruction index, and the reverse map from byte
// position to originating instruction index (spec §4.4).
type Encoded struct {
	Code            []byte
	ByteOffset      []int       // len(ByteOffset) == len(instrs)+1; ByteOffset[i] is instr i's start
	InstrAtByte     map[int]int // byte position -> originating instruction index
}

// Encode lays out instrs as a binary image, rewriting JUMP/JUMP0/DUMP
// displacements and JUMPA absolute targets from instruction indices to byte
// offsets (spec §4.4). It never rewrites the opcode or non-jump immediates.
func Encode(instrs []Instr) (Encoded, error) {
	byteOffset := make([]int, len(instrs)+1)
	offset := 0
	for i, instr := range instrs {
		byteOffset[i] = offset
		offset += instrByteSize(instr.Op)
	}
	byteOffset[len(instrs)] = offset

	code := make([]byte, 0, offset)
	instrAtByte := make(map[int]int, len(instrs))

	for i, instr := range instrs {
		pos := len(code)
		instrAtByte[pos] = i

		arg := instr.Arg
		switch instr.Op {
		case JUMP, JUMP0, DUMP:
			if instr.Op != DUMP && arg == 0 {
				return Encoded{}, fmt.Errorf("isa: encode: %s at %d has zero displacement", instr.Op, i)
			}
			target := i + int(arg)
			if target < 0 || target > len(instrs) {
				return Encoded{}, fmt.Errorf("isa: encode: %s at %d targets out-of-range instruction %d", instr.Op, i, target)
			}
			arg = int32(byteOffset[target] - byteOffset[i])
		case JUMPA:
			target := int(uint32(arg))
			if target < 0 || target >= len(instrs) {
				return Encoded{}, fmt.Errorf("isa: encode: JUMPA at %d targets out-of-range instruction %d", i, target)
			}
			arg = int32(byteOffset[target])
		}

		code = append(code, byte(Catalog[instr.Op].Byte))
		code = append(code, encodeImmediate(instr.Op, arg)...)
	}

	return Encoded{Code: code, ByteOffset: byteOffset, InstrAtByte: instrAtByte}, nil
}

// Decode reverses Encode: it walks the byte image, decoding each
// instruction and re-expressing JUMP/JUMP0/DUMP displacements and JUMPA
// targets back as instruction indices, so that decode(encode(P)) == P up to
// the jump-offset rewrite (spec §8, P2).
func Decode(code []byte) ([]Instr, error) {
	// First pass: find each instruction's byte position so jump targets
	// (given in bytes) can be resolved back to instruction indices.
	positions := []int{}
	ops := []Op{}
	for pos := 0; pos < len(code); {
		op, ok := OpFromByte(code[pos])
		if !ok {
			return nil, fmt.Errorf("isa: decode: unknown opcode byte 0x%02X at %d", code[pos], pos)
		}
		positions = append(positions, pos)
		ops = append(ops, op)
		pos += instrByteSize(op)
		if pos > len(code) {
			return nil, ErrTruncated
		}
	}

	indexAtByte := make(map[int]int, len(positions))
	for idx, pos := range positions {
		indexAtByte[pos] = idx
	}

	instrs := make([]Instr, len(positions))
	for idx, pos := range positions {
		op := ops[idx]
		width := Catalog[op].Imm.Width()
		immBytes := code[pos+1 : pos+1+width]
		arg := decodeImmediate(op, immBytes)

		switch op {
		case JUMP, JUMP0, DUMP:
			targetByte := pos + int(arg)
			targetIdx, ok := indexAtByte[targetByte]
			if !ok {
				return nil, fmt.Errorf("isa: decode: %s at byte %d targets non-instruction byte %d", op, pos, targetByte)
			}
			arg = int32(targetIdx - idx)
		case JUMPA:
			targetIdx, ok := indexAtByte[int(uint32(arg))]
			if !ok {
				return nil, fmt.Errorf("isa: decode: JUMPA at byte %d targets non-instruction byte %d", pos, arg)
			}
			arg = int32(targetIdx)
		}

		instrs[idx] = Instr{Op: op, Arg: arg}
	}

	return instrs, nil
}
