package bitvec

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

// TestArithmeticAgreesWithReferenceSemantics pins P1: bit-vector +, -, *, /,
// < agree with two's-complement reference semantics modulo 2^32.
func TestArithmeticAgreesWithReferenceSemantics(t *testing.T) {
	cases := []int64{0, 1, -1, 2, -2, 1000, -1000, 1 << 20, -(1 << 20), 1<<31 - 1, -(1 << 31)}

	for _, a := range cases {
		for _, b := range cases {
			av, bv := FromInt64(a, 32), FromInt64(b, 32)

			wantAdd := int32(a + b)
			gotAdd := int32(Add(av, bv).Int64())
			assert(t, gotAdd == wantAdd, "Add(%d,%d) = %d, want %d", a, b, gotAdd, wantAdd)

			wantSub := int32(a - b)
			gotSub := int32(Sub(av, bv).Int64())
			assert(t, gotSub == wantSub, "Sub(%d,%d) = %d, want %d", a, b, gotSub, wantSub)

			wantMul := int32(a * b)
			gotMul := int32(Mul(av, bv).Int64())
			assert(t, gotMul == wantMul, "Mul(%d,%d) = %d, want %d", a, b, gotMul, wantMul)

			wantLess := a < b
			gotLess := Less(av, bv)
			assert(t, gotLess == wantLess, "Less(%d,%d) = %v, want %v", a, b, gotLess, wantLess)

			if b != 0 {
				wantDiv := int32(a / b)
				q, err := Div(av, bv)
				assert(t, err == nil, "Div(%d,%d) unexpected error: %v", a, b, err)
				gotDiv := int32(q.Int64())
				assert(t, gotDiv == wantDiv, "Div(%d,%d) = %d, want %d", a, b, gotDiv, wantDiv)
			}
		}
	}
}

func TestDivByZeroTraps(t *testing.T) {
	_, err := Div(FromInt64(5, 32), FromInt64(0, 32))
	assert(t, err == ErrDivByZero, "expected ErrDivByZero, got %v", err)
}

func TestSignExtend16to32(t *testing.T) {
	pos := FromInt64(5, 16)
	assert(t, SignExtend16to32(pos).Int64() == 5, "positive sign extend failed")

	neg := FromInt64(-5, 16)
	assert(t, SignExtend16to32(neg).Int64() == -5, "negative sign extend failed")
}

func TestShiftLeftIsLogical(t *testing.T) {
	v := FromUint64(1, 8)
	got := ShiftLeft(v, 3).Uint64()
	assert(t, got == 8, "ShiftLeft(1,3) = %d, want 8", got)
}
