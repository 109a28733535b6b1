package ir

import "testing"

func TestEval(t *testing.T) {
	tests := []struct {
		op   AluOp
		l, r int
		want int
		ok   bool
	}{
		{ADD_I, 2, 3, 5, true},
		{SUB_I, 2, 3, -1, true},
		{MUL_I, 0x10000, 0x10000, 0, true},
		{DIV_I, 7, 2, 3, true},
		{DIV_I, 7, 0, 0, false},
		{MOD_I, -7, 2, -1, true},
		{MOD_I, 7, 0, 0, false},
		{LSR_I, -1, 28, 15, true},
		{ASR_I, -16, 2, -4, true},
		{LSL_I, 1, 33, 2, true},
		{EQ_I, 4, 4, 1, true},
		{GTE_I, 3, 4, 0, true},
		{ADD_R, 1, 1, 0, false},
	}

	for _, tt := range tests {
		got, ok := Eval(tt.op, tt.l, tt.r)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("Eval(%s, %d, %d) = %d, %v; want %d, %v", tt.op, tt.l, tt.r, got, ok, tt.want, tt.ok)
		}
	}
}

func TestInvertIsInvolution(t *testing.T) {
	for _, op := range []AluOp{EQ_I, NE_I, LT_I, GT_I, LTE_I, GTE_I} {
		inv, ok := op.Invert()
		if !ok {
			t.Fatalf("%s should invert", op)
		}
		back, _ := inv.Invert()
		if back != op {
			t.Errorf("Invert(Invert(%s)) = %s", op, back)
		}
	}
	if _, ok := ADD_I.Invert(); ok {
		t.Error("ADD_I is not a comparison")
	}
}

func TestCommutative(t *testing.T) {
	if SUB_I.IsCommutative() {
		t.Error("SUB_I must not be treated as commutative")
	}
	if !ADD_I.IsCommutative() || !NE_I.IsCommutative() {
		t.Error("ADD_I and NE_I are commutative")
	}
}

func TestParseAluOp(t *testing.T) {
	for _, name := range []string{"ADD_I", "GTE_I", "W", "MOV"} {
		op, ok := ParseAluOp(name)
		if !ok || op.String() != name {
			t.Errorf("ParseAluOp(%q) = %s, %v", name, op, ok)
		}
	}
}
