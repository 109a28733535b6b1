package legalize

import (
	"testing"

	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/types"
)

func TestBlock(t *testing.T) {
	tests := []struct {
		name  string
		build func(sess *ir.Session, cb *ir.CodeBlock)
		want  string
	}{
		{
			name: "small rhs stays inline",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				a := ir.NewLocal("a", types.Int, true)
				cb.AddMov(a, cb.AddAluOp(ir.ADD_I, a, sess.IntLit(10)))
			},
			want: "ADD_I &0, a, 10\nMOV a, &0\n",
		},
		{
			name: "large rhs goes through a temp",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				a := ir.NewLocal("a", types.Int, true)
				cb.AddMov(a, cb.AddAluOp(ir.ADD_I, a, sess.IntLit(0x1000)))
			},
			want: "MOV &1, 4096\nADD_I &0, a, &1\nMOV a, &0\n",
		},
		{
			name: "boundaries of the immediate range",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				a := ir.NewLocal("a", types.Int, true)
				cb.AddBranch(ir.LT_I, cb.NewLabel(), a, sess.IntLit(0xFFF))
				cb.AddBranch(ir.GT_I, cb.NewLabel(), a, sess.IntLit(-0x1000))
			},
			want: "BLT_I a, 4095, @0\nBGTE_I a, -4095, @1\n",
		},
		{
			name: "greater-than literal is compared against the next value",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				a := ir.NewLocal("a", types.Int, true)
				cb.AddBranch(ir.GT_I, cb.NewLabel(), a, sess.IntLit(5))
				cb.AddMov(a, cb.AddAluOp(ir.LTE_I, a, sess.IntLit(-3)))
			},
			want: "BGTE_I a, 6, @0\nLT_I &0, a, -2\nMOV a, &0\n",
		},
		{
			name: "greater-than the largest immediate goes through a temp",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				a := ir.NewLocal("a", types.Int, true)
				cb.AddBranch(ir.LTE_I, cb.NewLabel(), a, sess.IntLit(0xFFF))
			},
			want: "MOV &0, 4095\nBLTE_I a, &0, @0\n",
		},
		{
			name: "greater-than zero keeps the zero register",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				a := ir.NewLocal("a", types.Int, true)
				cb.AddBranch(ir.GT_I, cb.NewLabel(), a, sess.IntLit(0))
			},
			want: "BGT_I a, 0, @0\n",
		},
		{
			name: "literal lhs of branch",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				a := ir.NewLocal("a", types.Int, true)
				cb.AddBranch(ir.LT_I, cb.NewLabel(), sess.IntLit(3), a)
			},
			want: "MOV &0, 3\nBLT_I &0, a, @0\n",
		},
		{
			name: "store data and zero",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				g := ir.NewGlobal("g", types.Int, 4, true)
				cb.AddStore(types.Int, sess.IntLit(5), sess.Reg(ir.RegGlobals), g)
				cb.AddStore(types.Int, sess.Zero(), sess.Reg(ir.RegGlobals), g)
			},
			want: "MOV &0, 5\nSTW &0, %29[g]\nSTW 0, %29[g]\n",
		},
		{
			name: "repeated literal shares one temp",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				g := ir.NewGlobal("g", types.Int, 4, true)
				cb.AddStore(types.Int, sess.IntLit(5), sess.Reg(ir.RegGlobals), g)
				cb.AddStore(types.Int, sess.IntLit(5), sess.Reg(ir.RegGlobals), g)
			},
			want: "MOV &0, 5\nSTW &0, %29[g]\nMOV &0, 5\nSTW &0, %29[g]\n",
		},
		{
			name: "mov and end untouched",
			build: func(sess *ir.Session, cb *ir.CodeBlock) {
				cb.AddMov(sess.Reg(ir.ResultReg), sess.IntLit(100000))
				cb.AddEnd(sess.Reg(ir.ResultReg))
			},
			want: "MOV %8, 100000\nEND %8\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := ir.NewSession()
			cb := sess.NewCodeBlock("f")
			tt.build(sess, cb)

			Block(cb)

			if got := cb.Listing(); got != tt.want {
				t.Errorf("got\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestLegalizeIsIdempotent(t *testing.T) {
	sess := ir.NewSession()
	cb := sess.NewCodeBlock("f")
	a := ir.NewLocal("a", types.Int, true)
	g := ir.NewGlobal("g", types.Int, 0, true)

	cb.AddStart()
	cb.AddMov(a, cb.AddAluOp(ir.MUL_I, sess.IntLit(7), a))
	cb.AddStore(types.Int, sess.IntLit(9), a, sess.IntLit(8))
	cb.AddBranch(ir.EQ_I, cb.NewLabel(), a, sess.IntLit(50000))
	cb.AddBranch(ir.GT_I, cb.NewLabel(), a, sess.IntLit(9))
	cb.AddBranch(ir.LTE_I, cb.NewLabel(), a, sess.IntLit(0xFFF))
	cb.AddStore(types.Int, a, sess.Reg(ir.RegGlobals), g)
	cb.AddEnd()

	Block(cb)
	for _, instr := range cb.Prog {
		if !IsLegal(instr) {
			t.Errorf("%s is not legal after Block", instr)
		}
	}

	before := cb.Listing()
	if n := Block(cb); n != 0 {
		t.Errorf("second Block inserted %d copies", n)
	}
	if after := cb.Listing(); after != before {
		t.Errorf("legalizing legal code changed it:\n%s\nvs\n%s", before, after)
	}
}


func TestIsLegal(t *testing.T) {
	sess := ir.NewSession()
	a := ir.NewLocal("a", types.Int, true)
	l := ir.Label(0)

	tests := []struct {
		name  string
		instr ir.Instr
		want  bool
	}{
		{"literal rhs", ir.Branch{Op: ir.LT_I, Target: l, A: a, B: sess.IntLit(5)}, true},
		{"literal lhs", ir.Branch{Op: ir.LT_I, Target: l, A: sess.IntLit(5), B: a}, false},
		{"greater-than literal", ir.Branch{Op: ir.GT_I, Target: l, A: a, B: sess.IntLit(5)}, false},
		{"less-or-equal literal", ir.Alu{Op: ir.LTE_I, Dest: a, A: a, B: sess.IntLit(5)}, false},
		{"greater-than zero", ir.Branch{Op: ir.GT_I, Target: l, A: a, B: sess.IntLit(0)}, true},
		{"greater-than register", ir.Branch{Op: ir.GT_I, Target: l, A: a, B: sess.Reg(2)}, true},
		{"large rhs", ir.Alu{Op: ir.ADD_I, Dest: a, A: a, B: sess.IntLit(0x1000)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLegal(tt.instr); got != tt.want {
				t.Errorf("IsLegal(%s) = %v, want %v", tt.instr, got, tt.want)
			}
		})
	}
}
