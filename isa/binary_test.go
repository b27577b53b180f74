package isa

import (
	"fmt"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

// TestRoundTripEncoding pins P2: decode(encode(P)) == P up to the
// jump-offset rewrite, for a program exercising every jump kind.
func TestRoundTripEncoding(t *testing.T) {
	prog := []Instr{
		{PUSH, 5},       // 0
		{JUMP0, 3},      // 1 -> 4
		{PUSH, -1},      // 2
		{JUMP, 2},       // 3 -> 5
		{PUSH, 7},       // 4
		{DUMP, 2},       // 5 -> 7
		{JUMPA, 0},      // 6
		{RETURN, 0},     // 7
	}

	enc, err := Encode(prog)
	assert(t, err == nil, "Encode failed: %v", err)

	decoded, err := Decode(enc.Code)
	assert(t, err == nil, "Decode failed: %v", err)
	assert(t, len(decoded) == len(prog), "decoded length = %d, want %d", len(decoded), len(prog))

	for i := range prog {
		assert(t, decoded[i] == prog[i], "instr %d: got %+v, want %+v", i, decoded[i], prog[i])
	}
}

func TestSignMagnitudeRoundTripsNegative(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 12345, -12345, 32767, -32767} {
		b := encodeSignMagnitude(v, 2)
		got := decodeSignMagnitude(b)
		assert(t, got == v, "sign-magnitude round trip: got %d, want %d", got, v)
	}
}

func TestEncodeRejectsZeroJump(t *testing.T) {
	_, err := Encode([]Instr{{JUMP, 0}})
	assert(t, err != nil, "expected error for JUMP with zero displacement")
}
